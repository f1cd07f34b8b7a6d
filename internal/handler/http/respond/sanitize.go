package respond

import "regexp"

var (
	// user:password@ in postgres:// and nats:// URLs
	urlPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
	// key=value DSN form
	dsnPasswordPattern = regexp.MustCompile(`(?i)(password=)(\S+)`)
)

// SanitizeError returns the error text with connection passwords masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = urlPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "${1}****")
	return msg
}
