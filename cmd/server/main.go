package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/loginrelay/loginrelay/internal/config"
	"github.com/loginrelay/loginrelay/internal/server"
	"github.com/loginrelay/loginrelay/internal/session"
)

const (
	commandUse                    = "server"
	commandShortDescription       = "Serve login and session management over HTTP"
	envPrefix                     = "LOGINRELAY_SERVER"
	flagHostName                  = "host"
	flagHostDescription           = "Host interface for the HTTP server"
	flagPortName                  = "port"
	flagPortDescription           = "Port for the HTTP server"
	flagSessionsDirName           = "sessions-dir"
	flagSessionsDirDescription    = "Directory holding one JSON file per session"
	defaultHost                   = "127.0.0.1"
	defaultPort                   = 8080
	defaultSessionsDir            = "sessions"
	errMessageLoggerCreate        = "create logger"
	errMessageLoginServiceCreate  = "create login service"
	errMessageSessionStoreCreate  = "create session store"
	errMessageListenAndServe      = "listen and serve"
	errMessageMissingBaseURL      = "--base-url is required"
	logMessageLoginServiceCreated = "login service initialized"
	logMessageStartingServer      = "starting HTTP server"
	logMessageServerStopped       = "server stopped"
	logMessageListenError         = "server listen failure"
	logFieldAddress               = "address"
	logFieldStrategies            = "strategies"
	logFieldSessionsDir           = "sessions_dir"
)

func main() {
	cobra.CheckErr(newServerCommand().Execute())
}

func newServerCommand() *cobra.Command {
	configuration := viper.New()
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE: func(*cobra.Command, []string) error {
			return runServerCommand(configuration)
		},
	}

	command.Flags().String(flagHostName, defaultHost, flagHostDescription)
	command.Flags().Int(flagPortName, defaultPort, flagPortDescription)
	command.Flags().String(flagSessionsDirName, defaultSessionsDir, flagSessionsDirDescription)
	config.RegisterFlags(command.Flags())

	for _, flagName := range []string{flagHostName, flagPortName, flagSessionsDirName} {
		cobra.CheckErr(configuration.BindPFlag(flagName, command.Flags().Lookup(flagName)))
	}
	cobra.CheckErr(config.BindFlags(configuration, command.Flags()))

	cobra.OnInitialize(func() {
		config.ConfigureEnvironment(configuration, envPrefix)
	})

	return command
}

func runServerCommand(configuration *viper.Viper) error {
	settings := config.FromViper(configuration)
	if strings.TrimSpace(settings.BaseURL) == "" {
		return errors.New(errMessageMissingBaseURL)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	loginService, err := config.NewLoginService(settings, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoginServiceCreate, err)
	}
	logger.Info(logMessageLoginServiceCreated, zap.Strings(logFieldStrategies, loginService.StrategyNames()))

	sessionsDir := configuration.GetString(flagSessionsDirName)
	store, err := session.NewFileStore(session.FileStoreConfig{Directory: sessionsDir})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageSessionStoreCreate, err)
	}

	router, err := server.NewRouter(server.RouterConfig{
		LoginService: loginService,
		Store:        store,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	host := configuration.GetString(flagHostName)
	port := configuration.GetInt(flagPortName)
	address := fmt.Sprintf("%s:%d", host, port)
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address), zap.String(logFieldSessionsDir, sessionsDir))

	httpServer := &http.Server{Addr: address, Handler: router}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(logMessageListenError, zap.Error(err))
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}

	logger.Info(logMessageServerStopped)
	return nil
}
