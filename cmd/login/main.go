package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/loginrelay/loginrelay/internal/config"
	"github.com/loginrelay/loginrelay/internal/strategy"
)

const (
	commandUse                   = "login"
	commandShortDescription      = "Log in through the configured strategies and save the session cookies"
	envPrefix                    = "LOGINRELAY_LOGIN"
	flagEmailName                = "email"
	flagEmailDescription         = "Account email"
	flagPasswordName             = "password"
	flagPasswordDescription      = "Account password (prefer the LOGINRELAY_LOGIN_PASSWORD environment variable)"
	flagOutputName               = "output"
	flagOutputDescription        = "File to write the cookies to"
	flagFormatName               = "format"
	flagFormatDescription        = "Cookie output format: json or string"
	flagVerboseName              = "verbose"
	flagVerboseDescription       = "Log every attempt"
	defaultOutputPath            = "cookies.json"
	errMessageLoggerCreate       = "create logger"
	errMessageLoginServiceCreate = "create login service"
	errMessageMissingBaseURL     = "--base-url is required"
	errMessageMissingCredentials = "--email and a password are required"
	errMessageLogin              = "login"
	successMessageFormat         = "Logged in with %s strategy; wrote %d cookies to %s\n"
)

func main() {
	cobra.CheckErr(newLoginCommand().Execute())
}

func newLoginCommand() *cobra.Command {
	configuration := viper.New()
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE: func(command *cobra.Command, _ []string) error {
			return runLoginCommand(command.Context(), configuration)
		},
	}

	command.Flags().String(flagEmailName, "", flagEmailDescription)
	command.Flags().String(flagPasswordName, "", flagPasswordDescription)
	command.Flags().String(flagOutputName, defaultOutputPath, flagOutputDescription)
	command.Flags().String(flagFormatName, formatJSON, flagFormatDescription)
	command.Flags().Bool(flagVerboseName, false, flagVerboseDescription)
	config.RegisterFlags(command.Flags())

	for _, flagName := range []string{flagEmailName, flagPasswordName, flagOutputName, flagFormatName, flagVerboseName} {
		cobra.CheckErr(configuration.BindPFlag(flagName, command.Flags().Lookup(flagName)))
	}
	cobra.CheckErr(config.BindFlags(configuration, command.Flags()))

	cobra.OnInitialize(func() {
		config.ConfigureEnvironment(configuration, envPrefix)
	})

	return command
}

func runLoginCommand(ctx context.Context, configuration *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	settings := config.FromViper(configuration)
	if strings.TrimSpace(settings.BaseURL) == "" {
		return errors.New(errMessageMissingBaseURL)
	}
	credentials := strategy.Credentials{
		Email:    strings.TrimSpace(configuration.GetString(flagEmailName)),
		Password: configuration.GetString(flagPasswordName),
	}
	if credentials.Validate() != nil {
		return errors.New(errMessageMissingCredentials)
	}
	format := configuration.GetString(flagFormatName)
	if err := validateFormat(format); err != nil {
		return err
	}

	logger := zap.NewNop()
	if configuration.GetBool(flagVerboseName) {
		developmentLogger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
		}
		logger = developmentLogger
	}
	defer func() {
		_ = logger.Sync()
	}()

	loginService, err := config.NewLoginService(settings, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoginServiceCreate, err)
	}
	report, err := loginService.Login(ctx, credentials)
	if err != nil {
		return fmt.Errorf("%s: %w (tried %s)", errMessageLogin, err, describeAttempts(report))
	}

	outputPath := configuration.GetString(flagOutputName)
	if err := writeCookiesFile(outputPath, report.Result.Cookies, format); err != nil {
		return err
	}
	fmt.Printf(successMessageFormat, report.Result.Strategy, len(report.Result.Cookies), outputPath)
	return nil
}
