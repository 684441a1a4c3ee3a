package upload

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/shotstash/go-uploadutils/upload/network"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type fakePathModifier struct{}

func (m fakePathModifier) AbsPath(path string) (string, error) {
	return path, nil
}

type fakeNetworkClient struct {
	params network.UploadParams
	info   *network.FileInfo
	err    error
}

func (c *fakeNetworkClient) Upload(_ context.Context, params network.UploadParams, _ *network.AbortRegistry, _ log.Logger) (*network.FileInfo, error) {
	c.params = params
	return c.info, c.err
}
