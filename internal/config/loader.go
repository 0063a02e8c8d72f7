package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/gridcast/internal/support/exception"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

const moduleName = "config"

// EmbeddedSettings contains the raw bytes of the embedded YAML document.
type EmbeddedSettings []byte

// LoadSettings loads configuration in override order: compiled-in defaults,
// the embedded YAML document, then environment variables prefixed with
// EnvPrefix. A .env file, when present, populates the environment first.
// This function is expected to be called once during startup.
func LoadSettings(embedded EmbeddedSettings, envFilePath string) (*Settings, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	cfg := NewSettings()

	// YAML only overwrites keys present in the document, so unmarshalling into
	// the defaults is the merge.
	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, exception.NewPipelineError(moduleName, "failed to unmarshal embedded settings", err, false)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix); err != nil {
		return nil, exception.NewPipelineError(moduleName, "failed to load settings from environment variables", err, false)
	}

	logger.SetLogLevel(cfg.Logging.Level)
	return cfg, nil
}

// loadStructFromEnv recursively loads configuration values into a struct from
// environment variables, deriving variable names from yaml tags:
// entsoe.api_key becomes <prefix>ENTSOE_API_KEY.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets a scalar field from its string representation. Slice and map
// fields are configuration-file only.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
