package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "nounced"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host        string
		HttpPort    int    `yaml:"httpPort"`
		CacheDb     string `yaml:"cacheDb"`
		PageSize    int    `yaml:"pageSize"`
		SessionDays int    `yaml:"sessionDays"`
	}
	Content struct {
		ApiUrl     string `yaml:"apiUrl"`
		GatewayUrl string `yaml:"gatewayUrl"`
		Jwt        string `yaml:"jwt"`
	}
	Ledger struct {
		Enabled           bool   `yaml:"enabled"`
		GatewayUrl        string `yaml:"gatewayUrl"`
		Contract          string `yaml:"contract"`
		Confirmations     int    `yaml:"confirmations"`
		ConfirmTimeoutSec int    `yaml:"confirmTimeoutSec"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("NOUNCED_HOST")
	envHttpPort := os.Getenv("NOUNCED_HTTPPORT")
	envCacheDb := os.Getenv("NOUNCED_CACHEDB")
	envContentApi := os.Getenv("NOUNCED_CONTENT_APIURL")
	envContentJwt := os.Getenv("NOUNCED_CONTENT_JWT")
	envLedgerEnabled := os.Getenv("NOUNCED_LEDGER_ENABLED")
	envLedgerGateway := os.Getenv("NOUNCED_LEDGER_GATEWAYURL")
	envLedgerContract := os.Getenv("NOUNCED_LEDGER_CONTRACT")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envCacheDb != "" {
		c.Conf.CacheDb = envCacheDb
	}

	if envContentApi != "" {
		c.Content.ApiUrl = envContentApi
	}

	if envContentJwt != "" {
		c.Content.Jwt = envContentJwt
	}

	if envLedgerEnabled == "true" {
		c.Ledger.Enabled = true
	}

	if envLedgerGateway != "" {
		c.Ledger.GatewayUrl = envLedgerGateway
	}

	if envLedgerContract != "" {
		c.Ledger.Contract = envLedgerContract
	}

	if c.Conf.PageSize <= 0 {
		c.Conf.PageSize = 10
	}

	if c.Conf.SessionDays <= 0 {
		c.Conf.SessionDays = 7
	}

	if c.Ledger.Confirmations <= 0 {
		c.Ledger.Confirmations = 1
	}

	if c.Ledger.ConfirmTimeoutSec <= 0 {
		c.Ledger.ConfirmTimeoutSec = 90
	}

	return c, nil
}
