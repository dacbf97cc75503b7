package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// ********************************************************
// ********* LOGGING **************************************
// ********************************************************

// stdout carries the JSON-RPC stream, so nothing in here may ever write to it.

var (
	showDateTime  bool
	useColour     = true
	defaultLogger *Logger
	logFile       *os.File
	outMu         sync.Mutex
)

type LogLevel int

const (
	colorReset   = "\033[0m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorOrange  = "\033[38;5;208m"
)

const (
	DEBUG LogLevel = iota
	INFO
	INFORM
	HIGHLIGHT
	WARN
	ERROR
	FATAL
)

// DefaultLogFile is used by the 'f' and 'b' outputs when no path is given
const DefaultLogFile = "/tmp/xthread.log"

type Logger struct {
	out   *log.Logger
	level LogLevel
}

func init() {
	defaultLogger = NewLogger(INFO, os.Stderr)
}

func flags() int {
	if showDateTime {
		return log.Ldate | log.Ltime
	}
	return 0
}

func SetShowDateTime(value bool) {
	outMu.Lock()
	defer outMu.Unlock()
	showDateTime = value
	defaultLogger.out.SetFlags(flags())
}

// SetLevel sets the minimum level written by the default logger
func SetLevel(level LogLevel) {
	outMu.Lock()
	defer outMu.Unlock()
	defaultLogger.level = level
}

// SetWriter points the default logger at an arbitrary writer and disables colour codes.
// Mostly useful in tests.
func SetWriter(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	closeLogFile()
	useColour = false
	defaultLogger.out = log.New(w, "", flags())
}

// SetLogOutput sets the output destination for logs
// 'c' for console (stderr), 'f' for file, 'b' for both
func SetLogOutput(outputType rune, path string) error {
	outMu.Lock()
	defer outMu.Unlock()
	closeLogFile()

	if path == "" {
		path = DefaultLogFile
	}

	var w io.Writer
	switch outputType {
	case 'c':
		w = os.Stderr
		useColour = true
	case 'f', 'b':
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		logFile = f
		w = f
		useColour = false
		if outputType == 'b' {
			w = io.MultiWriter(os.Stderr, f)
		}
	default:
		return fmt.Errorf("invalid log output type: %c", outputType)
	}

	defaultLogger.out = log.New(w, "", flags())
	return nil
}

// Close releases the log file if one is open
func Close() {
	outMu.Lock()
	defer outMu.Unlock()
	closeLogFile()
}

func closeLogFile() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func NewLogger(level LogLevel, w io.Writer) *Logger {
	return &Logger{
		out:   log.New(w, "", flags()),
		level: level,
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a LogLevel
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "INFORM":
		return INFORM, nil
	case "HIGHLIGHT":
		return HIGHLIGHT, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	}
	return INFO, fmt.Errorf("unknown log level: %s", name)
}

func (l *Logger) log(level LogLevel, format string, v ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
		line = 0
	}
	file = filepath.Base(file)

	msg := format
	var jsonObjects []string
	if len(v) > 0 {
		var processed []string
		processed, jsonObjects = processArgs(v...)
		if len(processed) > 0 {
			msg = format + " " + strings.Join(processed, " ")
		}
	}

	colourOn, colourOff := "", ""
	if useColour {
		colourOn, colourOff = level.colour(), colorReset
	}

	l.out.Printf("[%s] %s:%d: %s%s%s", level, file, line, colourOn, msg, colourOff)
	for _, obj := range jsonObjects {
		l.out.Printf("[%s] %s:%d: %s%s%s", level, file, line, colourOn, obj, colourOff)
	}
}

func (l LogLevel) colour() string {
	switch l {
	case DEBUG:
		return colorBlue
	case INFO:
		return colorGreen
	case INFORM:
		return colorMagenta
	case HIGHLIGHT:
		return colorCyan
	case WARN:
		return colorYellow
	case ERROR:
		return colorOrange
	case FATAL:
		return colorRed
	}
	return colorReset
}

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case INFORM:
		return "INFORM"
	case HIGHLIGHT:
		return "HIGHLIGHT"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// processArgs processes arguments, converting non-primitives to JSON
// Returns a slice of string representations for primitive types and a slice of JSON strings for complex types
func processArgs(args ...any) ([]string, []string) {
	var primitives []string
	var jsonObjects []string

	for _, arg := range args {
		if isPrimitive(arg) {
			switch v := arg.(type) {
			case float32:
				primitives = append(primitives, fmt.Sprintf("%.2f", v))
			case float64:
				primitives = append(primitives, fmt.Sprintf("%.2f", v))
			case string:
				primitives = append(primitives, v)
			case error:
				primitives = append(primitives, v.Error())
			case nil:
				primitives = append(primitives, "nil")
			default:
				primitives = append(primitives, fmt.Sprintf("%v", v))
			}
			continue
		}

		jsonBytes, err := json.MarshalIndent(arg, "", "  ")
		if err != nil {
			primitives = append(primitives, fmt.Sprintf("%v", arg))
			continue
		}
		primitives = append(primitives, fmt.Sprintf("[Object of type %s]", reflect.TypeOf(arg)))
		jsonObjects = append(jsonObjects, string(jsonBytes))
	}
	return primitives, jsonObjects
}

// isPrimitive checks if a value is a primitive type
func isPrimitive(v any) bool {
	if v == nil {
		return true
	}

	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, error:
		return true
	default:
		return false
	}
}

// Convenience methods using the default logger
func Debug(format string, v ...any) {
	defaultLogger.log(DEBUG, format, v...)
}

func Info(format string, v ...any) {
	defaultLogger.log(INFO, format, v...)
}

func Inform(format string, v ...any) {
	defaultLogger.log(INFORM, format, v...)
}

func Highlight(format string, v ...any) {
	defaultLogger.log(HIGHLIGHT, format, v...)
}

func Warn(format string, v ...any) {
	defaultLogger.log(WARN, format, v...)
}

func Error(format string, v ...any) {
	defaultLogger.log(ERROR, format, v...)
}

func Fatal(format string, v ...any) {
	defaultLogger.log(FATAL, format, v...)
	os.Exit(1)
}
