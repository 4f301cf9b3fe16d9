package gemini

// Status is a two-digit Gemini response status code (spec §4.1).
// The first digit names the category; Class extracts it.
type Status int

// Gemini status codes (spec §3).
const (
	StatusInput                    Status = 10
	StatusSensitiveInput           Status = 11
	StatusSuccess                  Status = 20
	StatusRedirect                 Status = 30
	StatusRedirectPermanent        Status = 31
	StatusTemporaryFailure         Status = 40
	StatusServerUnavailable        Status = 41
	StatusCGIError                 Status = 42
	StatusProxyError               Status = 43
	StatusSlowDown                 Status = 44
	StatusPermanentFailure         Status = 50
	StatusNotFound                 Status = 51
	StatusGone                     Status = 52
	StatusProxyRequestRefused      Status = 53
	StatusBadRequest               Status = 59
	StatusCertificateRequired      Status = 60
	StatusCertificateNotAuthorized Status = 61
	StatusCertificateNotValid      Status = 62
)

// Status classes: the first digit of the status, times ten.
const (
	StatusClassInput               = 10
	StatusClassSuccess              = 20
	StatusClassRedirect             = 30
	StatusClassTemporaryFailure     = 40
	StatusClassPermanentFailure     = 50
	StatusClassCertificateRequired  = 60
)

// Class returns the status class for the status, e.g. 21 -> 20.
func (s Status) Class() int {
	return (int(s) / 10) * 10
}

// IsInputRequired reports whether s is a 1x status.
func (s Status) IsInputRequired() bool { return s.Class() == StatusClassInput }

// IsSuccess reports whether s is a 2x status.
func (s Status) IsSuccess() bool { return s.Class() == StatusClassSuccess }

// IsRedirect reports whether s is a 3x status.
func (s Status) IsRedirect() bool { return s.Class() == StatusClassRedirect }

// IsTemporaryFailure reports whether s is a 4x status.
func (s Status) IsTemporaryFailure() bool { return s.Class() == StatusClassTemporaryFailure }

// IsPermanentFailure reports whether s is a 5x status.
func (s Status) IsPermanentFailure() bool { return s.Class() == StatusClassPermanentFailure }

// IsCertificateRequired reports whether s is a 6x status.
func (s Status) IsCertificateRequired() bool {
	return s.Class() == StatusClassCertificateRequired
}

// IsError reports whether s is any failure class (4x, 5x, or 6x).
func (s Status) IsError() bool {
	return s.IsTemporaryFailure() || s.IsPermanentFailure() || s.IsCertificateRequired()
}

// Valid reports whether s falls within the protocol's [10, 69] range.
func (s Status) Valid() bool {
	return s >= 10 && s <= 69
}

// Text returns a short description of the status code, or the empty
// string if the code is not one of the named codes used by the core.
func (s Status) Text() string {
	switch s {
	case StatusInput:
		return "Input"
	case StatusSensitiveInput:
		return "Sensitive input"
	case StatusSuccess:
		return "Success"
	case StatusRedirect:
		return "Redirect"
	case StatusRedirectPermanent:
		return "Permanent redirect"
	case StatusTemporaryFailure:
		return "Temporary failure"
	case StatusServerUnavailable:
		return "Server unavailable"
	case StatusCGIError:
		return "CGI error"
	case StatusProxyError:
		return "Proxy error"
	case StatusSlowDown:
		return "Slow down"
	case StatusPermanentFailure:
		return "Permanent failure"
	case StatusNotFound:
		return "Not found"
	case StatusGone:
		return "Gone"
	case StatusProxyRequestRefused:
		return "Proxy request refused"
	case StatusBadRequest:
		return "Bad request"
	case StatusCertificateRequired:
		return "Certificate required"
	case StatusCertificateNotAuthorized:
		return "Certificate not authorized"
	case StatusCertificateNotValid:
		return "Certificate not valid"
	}
	return ""
}
