package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tphakala/lensstory/internal/conf"
)

func TestNewSelectsLocalWithoutCredentials(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Storage.Local.Path = "gallery.db"

	ds := New(settings)
	assert.IsType(t, &LocalStore{}, ds)
}

func TestNewSelectsRemoteWithCredentials(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Storage.Remote.Endpoint = "minio.test:9000"
	settings.Storage.Remote.AccessKeyID = "key"
	settings.Storage.Remote.SecretAccessKey = "secret"
	settings.Storage.Remote.Bucket = "photos"
	settings.Storage.Remote.MySQL.Host = "db.test"

	ds := New(settings)
	assert.IsType(t, &RemoteStore{}, ds)
}
