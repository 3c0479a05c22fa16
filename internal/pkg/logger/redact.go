package logger

// MaskToken masks a bearer token for safe logging.
// "sl.Bx7kQ...full...token" → "sl.B***oken"
// Short tokens (≤8 chars) are fully masked: "abc" → "***"
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "***" + token[len(token)-4:]
}
