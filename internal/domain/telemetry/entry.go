package telemetry

import (
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/preview/internal/shared/id"
)

// Level is a console level.
type Level string

const (
	LevelLog   Level = "log"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDebug Level = "debug"
)

// Levels lists every level in display order.
var Levels = []Level{LevelLog, LevelInfo, LevelWarn, LevelError, LevelDebug}

// ParseLevel maps a wire level to a Level; unknown levels become LevelLog.
func ParseLevel(s string) Level {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelLog, LevelInfo, LevelWarn, LevelError, LevelDebug:
		return l
	case "warning":
		return LevelWarn
	default:
		return LevelLog
	}
}

// Origin says where an entry came from.
type Origin string

const (
	// FromFrame entries were relayed out of the isolated document.
	FromFrame Origin = "frame"
	// FromHost entries were added by the preview pipeline itself.
	FromHost Origin = "host"
)

// Entry is one telemetry record.
type Entry struct {
	ID        id.EntryID `json:"id"`
	Level     Level      `json:"level"`
	Message   string     `json:"message"`
	Stack     string     `json:"stack,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Origin    Origin     `json:"origin"`
	Frame     id.FrameID `json:"frame,omitempty"`
}

// Counts are derived per-level totals.
type Counts struct {
	Log   int `json:"log"`
	Info  int `json:"info"`
	Warn  int `json:"warn"`
	Error int `json:"error"`
	Debug int `json:"debug"`
	Total int `json:"total"`
}

func (c *Counts) add(l Level) {
	c.Total++
	switch l {
	case LevelLog:
		c.Log++
	case LevelInfo:
		c.Info++
	case LevelWarn:
		c.Warn++
	case LevelError:
		c.Error++
	case LevelDebug:
		c.Debug++
	}
}
