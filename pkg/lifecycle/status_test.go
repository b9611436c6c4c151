package lifecycle

import (
	"encoding/json"
	"testing"
)

func TestSystemStatusValidate(t *testing.T) {
	valid := []SystemStatus{SystemRunning, SystemUpdating, SystemRestarting}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", s, err)
		}
	}

	if err := SystemStatus("PAUSED").Validate(); err == nil {
		t.Error("Validate(PAUSED) = nil, want error")
	}
	if err := SystemStatus("running").Validate(); err == nil {
		t.Error("Validate(running) = nil, want error for lower-case system status")
	}
}

func TestSystemStatusIsBusy(t *testing.T) {
	if SystemRunning.IsBusy() {
		t.Error("RUNNING should not be busy")
	}
	if !SystemUpdating.IsBusy() {
		t.Error("UPDATING should be busy")
	}
	if !SystemRestarting.IsBusy() {
		t.Error("RESTARTING should be busy")
	}
}

func TestAppStatusValidate(t *testing.T) {
	valid := []AppStatus{
		AppRunning, AppStopped, AppInstalling, AppUninstalling,
		AppStopping, AppStarting, AppMissing, AppUpdating,
	}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", s, err)
		}
	}

	if err := AppStatus("paused").Validate(); err == nil {
		t.Error("Validate(paused) = nil, want error")
	}
	if err := AppStatus("RUNNING").Validate(); err == nil {
		t.Error("Validate(RUNNING) = nil, want error for upper-case app status")
	}
}

func TestAppStatusTransientSettled(t *testing.T) {
	transient := []AppStatus{AppInstalling, AppUninstalling, AppStopping, AppStarting, AppUpdating}
	for _, s := range transient {
		if !s.IsTransient() {
			t.Errorf("%s should be transient", s)
		}
		if s.IsSettled() {
			t.Errorf("%s should not be settled", s)
		}
	}

	settled := []AppStatus{AppRunning, AppStopped, AppMissing}
	for _, s := range settled {
		if !s.IsSettled() {
			t.Errorf("%s should be settled", s)
		}
		if s.IsTransient() {
			t.Errorf("%s should not be transient", s)
		}
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(SystemUpdating)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `"UPDATING"` {
		t.Errorf("Marshal(SystemUpdating) = %s, want %q", raw, `"UPDATING"`)
	}

	var system SystemStatus
	if err := json.Unmarshal([]byte(`"RESTARTING"`), &system); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if system != SystemRestarting {
		t.Errorf("Unmarshal() = %s, want %s", system, SystemRestarting)
	}

	var app AppStatus
	if err := json.Unmarshal([]byte(`"installing"`), &app); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if app != AppInstalling {
		t.Errorf("Unmarshal() = %s, want %s", app, AppInstalling)
	}
}

func TestStatusUnmarshalRejectsUnknown(t *testing.T) {
	var system SystemStatus
	if err := json.Unmarshal([]byte(`"SLEEPING"`), &system); err == nil {
		t.Error("Unmarshal(SLEEPING) = nil, want error")
	}

	var app AppStatus
	if err := json.Unmarshal([]byte(`"frozen"`), &app); err == nil {
		t.Error("Unmarshal(frozen) = nil, want error")
	}
}
