package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"podsig/internal/integrity"
	"podsig/internal/reconcile"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	return paint(base, kind, colorize)
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColors(kind statusKind) text.Colors {
	switch kind {
	case statusOK:
		return text.Colors{text.FgGreen}
	case statusWarn:
		return text.Colors{text.FgYellow}
	case statusError:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgBlue}
	}
}

func paint(value string, kind statusKind, colorize bool) string {
	if !colorize {
		return value
	}
	return statusKindColors(kind).Sprint(value)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = paint(line, statusInfo, true)
		rule = paint(rule, statusInfo, true)
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func reconcileStatusKind(status reconcile.Status) statusKind {
	switch status {
	case reconcile.StatusValid:
		return statusOK
	case reconcile.StatusSigned, reconcile.StatusResigned:
		return statusInfo
	case reconcile.StatusWouldSign, reconcile.StatusWouldResign:
		return statusWarn
	default:
		return statusError
	}
}

func checkStatusKind(status integrity.CheckStatus) statusKind {
	switch status {
	case integrity.StatusMatch:
		return statusOK
	case integrity.StatusAbsent:
		return statusInfo
	case integrity.StatusMismatch:
		return statusWarn
	default:
		return statusError
	}
}
