package prestods

import (
	"encoding/json"
	"os"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DatasourceFile is a provisioning-style description of one datasource, used
// to run the plugin outside Grafana.
type DatasourceFile struct {
	ID             int64             `yaml:"id"`
	UID            string            `yaml:"uid"`
	Name           string            `yaml:"name"`
	BasicAuthUser  string            `yaml:"basicAuthUser"`
	JSONData       map[string]any    `yaml:"jsonData"`
	SecureJSONData map[string]string `yaml:"secureJsonData"`
}

// LoadInstanceSettings reads a YAML datasource file.
func LoadInstanceSettings(path string) (backend.DataSourceInstanceSettings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return backend.DataSourceInstanceSettings{}, errors.Wrap(err, "read datasource file")
	}
	return ParseInstanceSettings(b)
}

// ParseInstanceSettings converts YAML datasource content into the settings
// the host would hand to the plugin.
func ParseInstanceSettings(b []byte) (backend.DataSourceInstanceSettings, error) {
	var f DatasourceFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return backend.DataSourceInstanceSettings{}, errors.Wrap(ErrInvalidSettings, err.Error())
	}
	if f.Name == "" {
		f.Name = "presto"
	}

	jsonData, err := json.Marshal(f.JSONData)
	if err != nil {
		return backend.DataSourceInstanceSettings{}, errors.Wrap(ErrInvalidSettings, err.Error())
	}

	return backend.DataSourceInstanceSettings{
		ID:                      f.ID,
		UID:                     f.UID,
		Name:                    f.Name,
		BasicAuthEnabled:        f.BasicAuthUser != "",
		BasicAuthUser:           f.BasicAuthUser,
		JSONData:                jsonData,
		DecryptedSecureJSONData: f.SecureJSONData,
	}, nil
}
