package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers the default configuration values. These mirror
// the embedded config.yaml; viper needs them registered explicitly so
// environment-only deployments resolve every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "lensstory")
	v.SetDefault("main.logdir", "logs")

	v.SetDefault("gallery.language", "en")

	v.SetDefault("storage.local.path", "lensstory.db")

	v.SetDefault("storage.remote.endpoint", "")
	v.SetDefault("storage.remote.accesskeyid", "")
	v.SetDefault("storage.remote.secretaccesskey", "")
	v.SetDefault("storage.remote.usessl", false)
	v.SetDefault("storage.remote.bucket", "photos")
	v.SetDefault("storage.remote.publicbaseurl", "")
	v.SetDefault("storage.remote.mysql.host", "")
	v.SetDefault("storage.remote.mysql.port", "3306")
	v.SetDefault("storage.remote.mysql.username", "")
	v.SetDefault("storage.remote.mysql.password", "")
	v.SetDefault("storage.remote.mysql.database", "lensstory")

	v.SetDefault("vision.apikey", "")
	v.SetDefault("vision.endpoint", "https://generativelanguage.googleapis.com")
	v.SetDefault("vision.model", "gemini-2.5-flash")
	v.SetDefault("vision.timeout", 60*time.Second)
	v.SetDefault("vision.cachettl", 24*time.Hour)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.port", "8080")
}
