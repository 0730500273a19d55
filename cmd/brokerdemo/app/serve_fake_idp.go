package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/oauth2broker/pkg/logger"
)

var serveFakeIdpCmd = &cobra.Command{
	Use:   "serve-fake-idp",
	Short: "Run an in-process fake IdP token endpoint for manual/integration testing",
	Long: `serve-fake-idp implements client_credentials, refresh_token,
authorization_code, and device_code token endpoints, always issuing
successful responses unless --inject-error is set, in which case every
request is answered with the injected error until the process is
restarted.`,
	RunE: runServeFakeIdp,
}

func init() {
	serveFakeIdpCmd.Flags().String("address", ":8089", "address to listen on")
	serveFakeIdpCmd.Flags().String("inject-error", "", "if set, every token request fails with this RFC 6749 error code (e.g. invalid_grant)")
	serveFakeIdpCmd.Flags().Int("inject-status", 0, "HTTP status to pair with --inject-error (default 400, or 429 for rate-limit simulation)")
	serveFakeIdpCmd.Flags().Duration("retry-after", 0, "if set alongside --inject-error, sets a Retry-After header on every injected error response")
}

type fakeIdpErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type fakeIdpTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type fakeIdpDeviceResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

func runServeFakeIdp(cmd *cobra.Command, _ []string) error {
	address, _ := cmd.Flags().GetString("address")
	injectError, _ := cmd.Flags().GetString("inject-error")
	injectStatus, _ := cmd.Flags().GetInt("inject-status")
	retryAfter, _ := cmd.Flags().GetDuration("retry-after")

	if injectStatus == 0 {
		injectStatus = http.StatusBadRequest
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", fakeIdpTokenHandler(injectError, injectStatus, retryAfter))
	mux.HandleFunc("/device", fakeIdpDeviceHandler(injectError, injectStatus, retryAfter))

	logger.Infof("Fake IdP listening on %s (token=%s/token, device=%s/device)", address, address, address)
	if injectError != "" {
		logger.Infof("Every request will fail with error=%s status=%d retry_after=%s", injectError, injectStatus, retryAfter)
	}

	server := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return server.ListenAndServe()
}

func fakeIdpTokenHandler(injectError string, injectStatus int, retryAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if writeInjectedError(w, injectError, injectStatus, retryAfter) {
			return
		}

		if err := r.ParseForm(); err != nil {
			writeFakeIdpError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		grantType := r.Form.Get("grant_type")
		resp := fakeIdpTokenResponse{
			AccessToken: fmt.Sprintf("fake-access-%d", time.Now().UnixNano()),
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		}
		if grantType == "refresh_token" || grantType == "authorization_code" {
			resp.RefreshToken = fmt.Sprintf("fake-refresh-%d", time.Now().UnixNano())
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func fakeIdpDeviceHandler(injectError string, injectStatus int, retryAfter time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if writeInjectedError(w, injectError, injectStatus, retryAfter) {
			return
		}
		writeJSON(w, http.StatusOK, fakeIdpDeviceResponse{
			DeviceCode:      "fake-device-code",
			UserCode:        "ABCD-EFGH",
			VerificationURI: "https://example.invalid/activate",
			ExpiresIn:       600,
			Interval:        5,
		})
	}
}

func writeInjectedError(w http.ResponseWriter, injectError string, injectStatus int, retryAfter time.Duration) bool {
	if injectError == "" {
		return false
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
	}
	writeFakeIdpError(w, injectStatus, injectError, "")
	return true
}

func writeFakeIdpError(w http.ResponseWriter, status int, errorCode, description string) {
	writeJSON(w, status, fakeIdpErrorResponse{Error: errorCode, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
