package auth

// Failure tags why an auth operation did not produce a token pair.
type Failure int

const (
	FailureNone Failure = iota
	FailureInvalidPayload
	FailureEmailInUse
	FailureIdentity
	FailureInvalidCredentials
	FailureTokenValidation
	FailureTokenNotExpired
	FailureRefreshTokenNotFound
	FailureRefreshTokenExpired
	FailureRefreshTokenUsed
	FailureRefreshTokenRevoked
	FailureTokenMismatch
	FailureProcessing
)

var failureNames = map[Failure]string{
	FailureNone:                 "none",
	FailureInvalidPayload:       "invalid_payload",
	FailureEmailInUse:           "email_in_use",
	FailureIdentity:             "identity",
	FailureInvalidCredentials:   "invalid_credentials",
	FailureTokenValidation:      "token_validation",
	FailureTokenNotExpired:      "token_not_expired",
	FailureRefreshTokenNotFound: "refresh_token_not_found",
	FailureRefreshTokenExpired:  "refresh_token_expired",
	FailureRefreshTokenUsed:     "refresh_token_used",
	FailureRefreshTokenRevoked:  "refresh_token_revoked",
	FailureTokenMismatch:        "token_mismatch",
	FailureProcessing:           "processing",
}

// Messages shown to callers for each failure. FailureIdentity has none of its
// own; it carries the identity provider's descriptions.
const (
	MsgInvalidPayload       = "Invalid payload"
	MsgEmailInUse           = "Email already in use"
	MsgInvalidCredentials   = "Invalid authentication request"
	MsgTokenValidation      = "token validation failed"
	MsgTokenNotExpired      = "Jwt token has not expired"
	MsgRefreshTokenNotFound = "Invalid Refresh token"
	MsgRefreshTokenExpired  = "Refresh token has expired. Please login again"
	MsgRefreshTokenUsed     = "Refresh token has been used. It cannot be reused."
	MsgRefreshTokenRevoked  = "Refresh token has been revoked."
	MsgTokenMismatch        = "Refresh token reference does not match the jwt token"
	MsgProcessing           = "Error Processing request"
)

var failureMessages = map[Failure]string{
	FailureInvalidPayload:       MsgInvalidPayload,
	FailureEmailInUse:           MsgEmailInUse,
	FailureInvalidCredentials:   MsgInvalidCredentials,
	FailureTokenValidation:      MsgTokenValidation,
	FailureTokenNotExpired:      MsgTokenNotExpired,
	FailureRefreshTokenNotFound: MsgRefreshTokenNotFound,
	FailureRefreshTokenExpired:  MsgRefreshTokenExpired,
	FailureRefreshTokenUsed:     MsgRefreshTokenUsed,
	FailureRefreshTokenRevoked:  MsgRefreshTokenRevoked,
	FailureTokenMismatch:        MsgTokenMismatch,
	FailureProcessing:           MsgProcessing,
}

func (f Failure) String() string {
	if n, ok := failureNames[f]; ok {
		return n
	}
	return "unknown"
}

// Result is the outcome of Register, Login and Refresh. Err keeps the
// underlying fault, if any, for logging; it is never serialised.
type Result struct {
	Success      bool     `json:"success"`
	Token        string   `json:"token,omitempty"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	Failure      Failure  `json:"-"`
	Err          error    `json:"-"`
}

func succeeded(p *TokenPair) *Result {
	return &Result{Success: true, Token: p.AccessToken, RefreshToken: p.RefreshToken}
}

// failed builds a rejection. Without explicit messages the failure's default
// message is used.
func failed(f Failure, err error, msgs ...string) *Result {
	if len(msgs) == 0 {
		if m, ok := failureMessages[f]; ok {
			msgs = []string{m}
		}
	}
	return &Result{Failure: f, Errors: msgs, Err: err}
}
