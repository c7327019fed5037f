package gate

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"alertdesk/internal/metrics"
)

// Gate applies the path policy to every request before routing.
type Gate struct {
	policy Policy
	auth   *Authenticator
	logger *slog.Logger
}

// New creates a gate.
// Params: path policy, credential authenticator, logger.
// Returns: gate with middleware and login handlers.
func New(policy Policy, auth *Authenticator, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{policy: policy, auth: auth, logger: logger}
}

// Policy returns the gate's path policy.
func (g *Gate) Policy() Policy {
	return g.policy
}

// Middleware evaluates one decision per request.
// Credentials are only inspected for classes that can be denied.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		class := g.policy.Classify(request.URL.Path)
		authenticated := false
		if RequiresCredential(class) {
			authenticated = g.auth.Authenticated(request, class)
		}
		decision := g.policy.decide(class, authenticated)
		metrics.GateDecisionsTotal.WithLabelValues(string(decision.Class), string(decision.Verdict)).Inc()

		switch decision.Verdict {
		case VerdictRedirect:
			g.logger.Debug("gate redirect", "path", request.URL.Path, "location", decision.Location)
			http.Redirect(writer, request, decision.Location, http.StatusFound)
		case VerdictReject:
			g.logger.Debug("gate reject", "path", request.URL.Path)
			writeJSON(writer, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		default:
			next.ServeHTTP(writer, request)
		}
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginStatus reports whether the caller is already authenticated.
func (g *Gate) LoginStatus(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]bool{
		"authenticated": g.auth.Authenticated(request, ClassAdminUI),
	})
}

// Login checks credentials and sets the session cookie.
// Accepts JSON or form bodies; form posts are redirected to the admin prefix on success.
func (g *Gate) Login(writer http.ResponseWriter, request *http.Request) {
	credentials, isForm, err := decodeLogin(request)
	if err != nil {
		writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid login request"})
		return
	}
	if err := g.auth.Login(credentials.Username, credentials.Password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			g.logger.Info("admin login rejected", "username", credentials.Username)
			writeJSON(writer, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	value, expires, err := g.auth.Issue(credentials.Username)
	if err != nil {
		g.logger.Error("issue session failed", "err", err)
		writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	http.SetCookie(writer, g.auth.SessionCookie(value, expires))
	g.logger.Info("admin login", "username", credentials.Username)

	if isForm {
		http.Redirect(writer, request, g.policy.AdminPrefix, http.StatusSeeOther)
		return
	}
	body := map[string]any{"authenticated": true, "expiresAt": expires.UTC()}
	if g.auth.Signed() {
		body["token"] = value
	}
	writeJSON(writer, http.StatusOK, body)
}

// Logout clears the session cookie.
func (g *Gate) Logout(writer http.ResponseWriter, _ *http.Request) {
	http.SetCookie(writer, g.auth.ClearCookie())
	writeJSON(writer, http.StatusOK, map[string]bool{"authenticated": false})
}

func decodeLogin(request *http.Request) (loginRequest, bool, error) {
	contentType := request.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") || strings.HasPrefix(contentType, "multipart/form-data") {
		if err := request.ParseForm(); err != nil {
			return loginRequest{}, true, err
		}
		return loginRequest{Username: request.PostFormValue("username"), Password: request.PostFormValue("password")}, true, nil
	}
	var credentials loginRequest
	if err := json.NewDecoder(request.Body).Decode(&credentials); err != nil {
		return loginRequest{}, false, err
	}
	return credentials, false, nil
}

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}
