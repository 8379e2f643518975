package importer

import (
	"fmt"
	"strings"
)

// MaxErrorLines - максимум строк ошибок в журнале задачи.
const MaxErrorLines = 200

// jobLog собирает человекочитаемый журнал задачи.
// Строки ошибок ограничены MaxErrorLines, остальные считаются.
type jobLog struct {
	lines      []string
	errorLines int
	dropped    int
}

func (l *jobLog) add(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *jobLog) addError(err error) {
	if l.errorLines >= MaxErrorLines {
		l.dropped++
		return
	}
	l.errorLines++
	l.lines = append(l.lines, "ошибка: "+err.Error())
}

func (l *jobLog) String() string {
	if l.dropped == 0 {
		return strings.Join(l.lines, "\n")
	}
	lines := append(l.lines[:len(l.lines):len(l.lines)], fmt.Sprintf("... и ещё %d ошибок", l.dropped))
	return strings.Join(lines, "\n")
}
