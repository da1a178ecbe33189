// Package logger — асинхронный лог с префиксом сервиса. Запись идёт через
// буферизованный канал, чтобы обработчики не блокировались на I/O; при
// переполнении буфера строки отбрасываются, счётчик потерь печатается при
// первой успешной записи после затора.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const queueSize = 8192

// Вызовы медленнее порога логируются даже при LOG_LEVEL=info.
const slowCall = 100 * time.Millisecond

var (
	prefix  string
	debug   bool
	queue   chan string
	dropped atomic.Int64
	once    sync.Once
)

func startWorker() {
	debug = os.Getenv("LOG_LEVEL") == "debug" || os.Getenv("LOG_LEVEL") == "trace"
	queue = make(chan string, queueSize)
	go func() {
		for msg := range queue {
			log.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(startWorker)
	select {
	case queue <- msg:
		if n := dropped.Swap(0); n > 0 {
			select {
			case queue <- fmt.Sprintf("%slogger: dropped %d lines", tag(), n):
			default:
				dropped.Add(n)
			}
		}
	default:
		dropped.Add(1)
	}
}

// SetPrefix задаёт тег сервиса в каждой строке ("api", "auth", "files", "push").
func SetPrefix(p string) {
	prefix = p
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration пишет имя функции и длительность в миллисекундах.
// При LOG_LEVEL=info — только вызовы дольше порога, при debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if debug || elapsed >= slowCall {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration — для defer: defer logger.DeferLogDuration("user.Create", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
