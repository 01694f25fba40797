package cmd

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/user/toolagent/internal/config"
	"github.com/user/toolagent/internal/errors"
	"github.com/user/toolagent/internal/llm"
	"github.com/user/toolagent/internal/logging"
	"github.com/user/toolagent/internal/tools"
	"github.com/user/toolagent/internal/tools/builtin"
)

// CommandContext holds the resources shared by CLI commands
type CommandContext struct {
	Config *config.Config
	Logger *logging.Logger
}

// newProvider builds the adapter for a command. Tests replace it.
var newProvider = func(cfg *config.Config, logger *logging.Logger, name, model string) (llm.Provider, error) {
	return llm.NewFactory(cfg, logger).Create(name, model)
}

// InitCommand loads configuration and creates the logger. The caller is
// responsible for calling Logger.Sync() when done.
func InitCommand(overrides map[string]any) (*CommandContext, error) {
	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		return nil, err
	}

	logger, err := InitLogger(cfg.Logging, debugFlag, verboseFlag)
	if err != nil {
		return nil, err
	}
	return &CommandContext{Config: cfg, Logger: logger}, nil
}

// InitLogger creates the logger from the logging settings:
//   - debug lowers both levels to debug and adds caller information
//   - verbose enables the console core regardless of configuration
func InitLogger(lc config.LoggingConfig, debug bool, verbose bool) (*logging.Logger, error) {
	logCfg := &logging.Config{
		LogDir:         lc.LogDir,
		FileLevel:      logging.LevelFromString(lc.FileLevel),
		ConsoleLevel:   logging.LevelFromString(lc.ConsoleLevel),
		EnableCaller:   debug,
		ConsoleEnabled: lc.Console || verbose,
	}
	if debug {
		logCfg.FileLevel = logging.LevelFromString("debug")
		logCfg.ConsoleLevel = logging.LevelFromString("debug")
	}

	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// buildRegistry registers the built-in tools rooted at workspace. With a
// catalog file, the catalog's definitions replace the built-in ones and
// are bound to the built-in handlers by name.
func buildRegistry(workspace, catalogFile string) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	if catalogFile == "" {
		if err := builtin.Register(reg, workspace); err != nil {
			return nil, err
		}
		return reg, nil
	}

	defs, err := tools.LoadDefinitionsFile(catalogFile)
	if err != nil {
		return nil, err
	}
	handlers, err := builtin.Handlers(workspace)
	if err != nil {
		return nil, err
	}
	if err := reg.RegisterCatalog(defs, handlers); err != nil {
		return nil, err
	}
	return reg, nil
}

// HandleCommandError prints the user-facing message of application errors
// to w and returns err unchanged
func HandleCommandError(w io.Writer, err error) error {
	if err == nil {
		return nil
	}

	var userErr interface{ GetUserMessage() string }
	if stderrors.As(err, &userErr) {
		fmt.Fprintf(w, "%s\n", userErr.GetUserMessage())
	}
	return err
}

// isFatal reports errors that end an interactive session
func isFatal(err error) bool {
	return errors.IsConfigurationError(err)
}
