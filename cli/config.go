package cli

import (
	"encoding/json"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/splatbuffer/pipeline"
	"go.viam.com/splatbuffer/utils"
)

// parseVector parses "x,y,z".
func parseVector(s string) (r3.Vector, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vector{}, errors.Errorf("expected x,y,z but got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vector{}, errors.Wrapf(err, "component %d of %q", i, s)
		}
		v[i] = f
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

// vectorHook lets configuration files spell vectors as "x,y,z" strings.
func vectorHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(r3.Vector{}) {
		return data, nil
	}
	return parseVector(data.(string))
}

// decodeConfig overlays the JSON object in data onto cfg. Unknown keys are rejected.
func decodeConfig(data []byte, cfg *pipeline.Config) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return utils.NewParseError("config is not a JSON object: %v", err)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(vectorHook),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return utils.NewParseError("config: %v", err)
	}
	return nil
}

// readConfigFile returns the defaults overlaid with the file at path.
func readConfigFile(path string) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, utils.NewIOError(err, "reading config %q", path)
	}
	if err := decodeConfig(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config %q", path)
	}
	return cfg, nil
}
