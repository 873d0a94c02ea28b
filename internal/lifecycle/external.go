package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IdentityProbe is what the duplicate-detection service matches against.
type IdentityProbe struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	PhotoRef    string `json:"photo_ref"`
}

// DuplicateDetector asks the external identity service whether a new
// registration matches an existing voter. Calls are timeout-bounded by the
// client; a timeout or transport failure is an error, never a verdict.
type DuplicateDetector interface {
	CheckDuplicate(ctx context.Context, probe IdentityProbe) (bool, error)
}

// BiometricMatcher verifies a live capture against the registration photo.
type BiometricMatcher interface {
	Match(ctx context.Context, registeredPhotoRef, livePhotoRef string) (bool, error)
}

type matchResponse struct {
	Match bool `json:"match"`
}

// HTTPVerifier talks to both verification services over JSON POST. The
// timeout applies per call on top of whatever deadline the caller carries.
type HTTPVerifier struct {
	dedupURL     string
	biometricURL string
	timeout      time.Duration
	client       *http.Client
}

func NewHTTPVerifier(dedupURL, biometricURL string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		dedupURL:     dedupURL,
		biometricURL: biometricURL,
		timeout:      timeout,
		client:       &http.Client{},
	}
}

func (v *HTTPVerifier) post(ctx context.Context, url string, payload any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode verifier request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build verifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("verifier call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}
	var out matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode verifier response: %w", err)
	}
	return out.Match, nil
}

func (v *HTTPVerifier) CheckDuplicate(ctx context.Context, probe IdentityProbe) (bool, error) {
	return v.post(ctx, v.dedupURL, probe)
}

func (v *HTTPVerifier) Match(ctx context.Context, registeredPhotoRef, livePhotoRef string) (bool, error) {
	return v.post(ctx, v.biometricURL, map[string]string{
		"registered_photo_ref": registeredPhotoRef,
		"live_photo_ref":       livePhotoRef,
	})
}

// PermissiveVerifier is the local-development stand-in: never a duplicate,
// always a biometric match.
type PermissiveVerifier struct{}

func (PermissiveVerifier) CheckDuplicate(context.Context, IdentityProbe) (bool, error) {
	return false, nil
}

func (PermissiveVerifier) Match(context.Context, string, string) (bool, error) {
	return true, nil
}
