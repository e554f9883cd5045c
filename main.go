package main

import (
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Logger is the minimal logging surface shared by every component.
type Logger interface {
	Log(format string, args ...any)
}

type moduleLogger struct {
	logger *log.Logger
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("      "+format, args...)
}

var engineLog *log.Logger

func main() {
	command := parseArgs()

	engineLogFile, moduleLogFile, modLog := setupLogging()
	defer engineLogFile.Close()
	defer moduleLogFile.Close()

	_ = godotenv.Load()

	accounts, err := loadAccounts()
	if err != nil {
		engineLog.Fatalf("Failed to load accounts: %v", err)
	}
	engineLog.Printf("Loaded %d account(s)", len(accounts))

	logger := &moduleLogger{logger: modLog}

	transport, err := NewHTTPClient(logger, DefaultTransportConfig())
	if err != nil {
		engineLog.Fatalf("Failed to create HTTP client: %v", err)
	}

	auth := NewAuthController(transport, logger)
	lotto := NewLotto645(transport, logger)
	notifier := NewNotifier(os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"), logger)
	controller := NewController(auth, lotto, notifier, logger)

	switch command {
	case "buy":
		engineLog.Printf("Starting buy run for %d account(s)...", len(accounts))
		controller.RunBuy(accounts)
	case "check":
		engineLog.Printf("Starting winning check for %d account(s)...", len(accounts))
		controller.RunCheck(accounts)
	}

	engineLog.Printf("=== Complete ===")
}

func parseArgs() string {
	if len(os.Args) < 2 {
		log.Fatal("Usage: dhlotto [buy|check]")
	}

	command := os.Args[1]
	if command != "buy" && command != "check" {
		log.Fatalf("Unknown command %q, want buy or check", command)
	}
	return command
}

func setupLogging() (engineLogFile, moduleLogFile *os.File, modLog *log.Logger) {
	var err error

	engineLogFile, err = os.OpenFile("engine.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open engine log file: %v", err)
	}
	engineLog = log.New(io.MultiWriter(os.Stdout, engineLogFile), "", log.LstdFlags)

	moduleLogFile, err = os.OpenFile("dhlotto.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		engineLog.Fatalf("Failed to open module log file: %v", err)
	}
	modLog = log.New(io.MultiWriter(os.Stdout, moduleLogFile), "", log.LstdFlags)

	return engineLogFile, moduleLogFile, modLog
}
