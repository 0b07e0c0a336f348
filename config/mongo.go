package config

const (
	MONGO_URI             = "MONGO_URI"             //nolint:staticcheck
	MONGO_DATABASE        = "MONGO_DATABASE"        //nolint:staticcheck
	MONGO_CONNECT_TIMEOUT = "MONGO_CONNECT_TIMEOUT" //nolint:staticcheck
	MONGO_MAX_POOL_SIZE   = "MONGO_MAX_POOL_SIZE"   //nolint:staticcheck
)

// Mongo is the connection configuration for the default MongoPersister
// backend; see provider/mongo.Init.
type Mongo struct {
	URI            string `json:"uri" mapstructure:"uri" ini:"uri" yaml:"uri"`
	Database       string `json:"database" mapstructure:"database" ini:"database" yaml:"database"`
	ConnectTimeout string `json:"connect_timeout" mapstructure:"connect_timeout" ini:"connect_timeout" yaml:"connect_timeout"`
	MaxPoolSize    uint64 `json:"max_pool_size" mapstructure:"max_pool_size" ini:"max_pool_size" yaml:"max_pool_size"`
}

func (*Mongo) setDefault() {
	cv.SetDefault("mongo.uri", "mongodb://127.0.0.1:27017")
	cv.SetDefault("mongo.database", "docsession")
	cv.SetDefault("mongo.connect_timeout", "10s")
	cv.SetDefault("mongo.max_pool_size", 100)
}
