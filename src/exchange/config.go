package exchange

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"perpagent/src/security"
)

// Config holds exchange credentials and connection settings, grounded on
// the teacher's connectors/config.go + executors/config.go merge.
type Config struct {
	APIKey    string `envconfig:"EXCHANGE_API_KEY"`
	APISecret string `envconfig:"EXCHANGE_API_SECRET"`
	// CredentialsEncrypted marks APIKey/APISecret as security.EncryptString
	// blobs rather than plaintext, matching how an operator would have
	// stored them via the cmd/keys flow this package serves.
	CredentialsEncrypted bool   `envconfig:"EXCHANGE_CREDENTIALS_ENCRYPTED" default:"false"`
	BaseURL              string `envconfig:"EXCHANGE_BASE_URL" default:"https://testnet-api.phemex.com"`
	ContractKind         string `envconfig:"EXCHANGE_CONTRACT_TYPE" default:"linear"` // linear or inverse
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	if !config.CredentialsEncrypted {
		return config
	}

	apiKey, err := security.DecryptString(config.APIKey)
	if err != nil {
		panic(fmt.Errorf("decrypting EXCHANGE_API_KEY: %w", err))
	}
	apiSecret, err := security.DecryptString(config.APISecret)
	if err != nil {
		panic(fmt.Errorf("decrypting EXCHANGE_API_SECRET: %w", err))
	}
	config.APIKey = apiKey
	config.APISecret = apiSecret
	return config
}
