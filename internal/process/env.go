package process

import (
	"fmt"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads a dotenv file into a map. Values already present in
// overrides win over the file.
func LoadEnvFile(path string, overrides map[string]string) (map[string]string, error) {
	fileEnv, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	out := make(map[string]string, len(fileEnv)+len(overrides))
	for k, v := range fileEnv {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out, nil
}
