package core

// Logger is the application logger.
// Extra args may carry an error, a map[string]interface{} of details or the current user (Claims) to attach.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person is implemented by values identifying the user behind a log entry.
type Person interface {
	LogPerson() (id, username, email string)
}
