package osm

import (
	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/scoutreports/osmsync/internal/utils"
)

// DefaultSettingsName is the settings file looked up in the user's home
// directory when no explicit path is given.
const DefaultSettingsName = ".osmsync.json"

// Settings holds everything needed to open a session against the server.
type Settings struct {
	Server   string
	Token    string
	APIID    string
	UserName string
	Password string
}

// LoadSettings reads the JSON settings file. Values can be overridden
// through OSM_* environment variables; a .env file next to the working
// directory is honoured if present.
func LoadSettings(path string) (*Settings, error) {
	if err := godotenv.Load(); err == nil {
		utils.Log.Debug("Loaded environment overrides from .env")
	}

	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, &ConfigurationError{File: DefaultSettingsName, Detail: err.Error()}
		}
		path = home + "/" + DefaultSettingsName
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("OSM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigurationError{File: path, Detail: err.Error()}
	}

	settings := &Settings{
		Server:   v.GetString("server"),
		Token:    v.GetString("token"),
		APIID:    v.GetString("apiID"),
		UserName: v.GetString("userName"),
		Password: v.GetString("password"),
	}

	for _, field := range []struct{ key, value string }{
		{"server", settings.Server},
		{"token", settings.Token},
		{"apiID", settings.APIID},
		{"userName", settings.UserName},
		{"password", settings.Password},
	} {
		if field.value == "" {
			return nil, &ConfigurationError{File: path, Detail: "missing required key " + field.key}
		}
	}

	return settings, nil
}
