package command

import "gopkg.in/src-d/go-errors.v1"

// Protocol errors. Their message is sent to the client as-is.
var (
	ErrNotValidCommand = errors.NewKind("Not a valid command. Send command 'help' for more information.")
	ErrUnexpected      = errors.NewKind("Unexpected: %s")
	ErrNotValidUser    = errors.NewKind("Not a valid user id.")
	ErrNotValidField   = errors.NewKind("Not a valid field name.")
	ErrNotValidSet     = errors.NewKind("Not a valid users set name")
	ErrNotValidContest = errors.NewKind("Not a valid contest name.")
	ErrNotValidGroup   = errors.NewKind("Not a valid group name: '%s'")
	ErrNotValidRule    = errors.NewKind("Not a valid rule name : '%s'")
	ErrJoinRule        = errors.NewKind("Not a valid rule name.")
	ErrScoreRule       = errors.NewKind("Not a valid score rule.")
	ErrExpectedParen   = errors.NewKind("Unexpected '%s'. Expected : ')'")
	ErrExpectedInto    = errors.NewKind("Expected: 'into'")
	ErrExpectedValue   = errors.NewKind("expected <value>")
	ErrExpectedName    = errors.NewKind("expected <name>")
	ErrCouldNotSet     = errors.NewKind("Could not set field")
	ErrPathNeeded      = errors.NewKind("Path is needed.")
	ErrUnknownMode     = errors.NewKind("Unknown output mode")
	ErrUnknownUser     = errors.NewKind("Unknown user")
	ErrFieldType       = errors.NewKind("Invalid field type")
	ErrNoReport        = errors.NewKind("Could not generate report on such a field.")
	ErrDump            = errors.NewKind("Could not dump data to '%s': %s")
	ErrNotSupported    = errors.NewKind("This command is not supported.")
)
