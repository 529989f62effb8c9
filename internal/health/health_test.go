package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sotto-app/sotto/internal/permissions"
	audiomock "github.com/sotto-app/sotto/pkg/audio/mock"
)

// fixedChecker reports a canned permission status.
type fixedChecker struct {
	status permissions.Status
	err    error
}

func (f fixedChecker) Check(context.Context) (permissions.Status, error) {
	return f.status, f.err
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_ReportsPerCheckResults(t *testing.T) {
	t.Parallel()
	h := New(
		Checker{Name: "audio", Check: func(context.Context) error { return nil }},
		Checker{Name: "permissions", Check: func(context.Context) error {
			return errors.New("microphone access missing")
		}},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["audio"] != "ok" {
		t.Errorf("audio check = %q, want ok", body.Checks["audio"])
	}
	if body.Checks["permissions"] != "fail: microphone access missing" {
		t.Errorf("permissions check = %q", body.Checks["permissions"])
	}
}

func TestReadyz_NoCheckersPasses(t *testing.T) {
	t.Parallel()
	h := New()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestPermissionsChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  permissions.Status
		err     error
		wantErr string
	}{
		{
			name:   "all granted",
			status: permissions.Status{Microphone: true, Accessibility: true},
		},
		{
			name:    "mic missing",
			status:  permissions.Status{Accessibility: true},
			wantErr: "microphone",
		},
		{
			name:    "accessibility missing",
			status:  permissions.Status{Microphone: true},
			wantErr: "accessibility",
		},
		{
			name:    "both missing",
			status:  permissions.Status{},
			wantErr: "microphone and accessibility",
		},
		{
			name:    "probe error",
			err:     errors.New("probe exploded"),
			wantErr: "probe exploded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Permissions(fixedChecker{status: tt.status, err: tt.err})
			if c.Name != "permissions" {
				t.Errorf("name = %q", c.Name)
			}

			err := c.Check(context.Background())
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Check = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Check = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAudioDevicesChecker(t *testing.T) {
	t.Parallel()

	c := AudioDevices(&audiomock.Source{Devices: []string{"built-in"}})
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check with devices = %v, want nil", err)
	}

	c = AudioDevices(&audiomock.Source{})
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check with no devices succeeded")
	}

	c = AudioDevices(&audiomock.Source{ListDevicesErr: errors.New("ffmpeg missing")})
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ffmpeg missing") {
		t.Errorf("Check = %v, want wrapped probe error", err)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "audio", Check: func(context.Context) error { return nil }})

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
