package logger

import (
	"fmt"
	"io"
	"os"
)

// AuditLogger writes one csv line per simulation event. A nil *AuditLogger discards everything,
// so callers never need to check whether auditing is enabled.
type AuditLogger struct {
	out            io.Writer
	printToConsole bool
}

func NewAuditLogger(out io.Writer, printToConsole bool) *AuditLogger {
	auditLogger := &AuditLogger{out: out, printToConsole: printToConsole}
	// write csv headers
	_, _ = fmt.Fprintf(out, "%v ; %v ; %v ; %v ; %v ; %v\n", "time", "nodeId", "eventType", "from->to", "id", "text")
	return auditLogger
}

func (logger *AuditLogger) log(text string, now int64) {
	toPrint := []byte(fmt.Sprintf("%v ; %v\n", now, text))
	_, _ = logger.out.Write(toPrint)
	if logger.printToConsole {
		_, _ = os.Stdout.Write(toPrint)
	}
}

func (logger *AuditLogger) Audit(nodeId int, t fmt.Stringer, id string, text string, now int64) {
	if logger != nil {
		logger.log(fmt.Sprintf("%v ; %v ; ; %v ; %v", nodeId, t, id, text), now)
	}
}

func (logger *AuditLogger) AuditEventSent(nodeId int, peerId int, t fmt.Stringer, id string, text string, now int64) {
	if logger != nil {
		logger.log(fmt.Sprintf("%v ; %v ; %v->%v ; %v ; %v", nodeId, t, nodeId, peerId, id, text), now)
	}
}

func (logger *AuditLogger) AuditEventReceived(nodeId int, peerId int, t fmt.Stringer, id string, text string, now int64) {
	if logger != nil {
		logger.log(fmt.Sprintf("%v ; %v ; %v->%v ; %v ; %v", nodeId, t, peerId, nodeId, id, text), now)
	}
}
