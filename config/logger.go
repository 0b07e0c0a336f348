package config

const (
	LOGGER_FILE        = "LOGGER_FILE"        //nolint:staticcheck
	LOGGER_LEVEL       = "LOGGER_LEVEL"       //nolint:staticcheck
	LOGGER_FORMAT      = "LOGGER_FORMAT"      //nolint:staticcheck
	LOGGER_MAX_AGE     = "LOGGER_MAX_AGE"     //nolint:staticcheck
	LOGGER_MAX_SIZE    = "LOGGER_MAX_SIZE"    //nolint:staticcheck
	LOGGER_MAX_BACKUPS = "LOGGER_MAX_BACKUPS" //nolint:staticcheck
)

// Logger configures the zap-backed loggers assigned to the package-level
// vars in package logger. File sets the sink of the global zap logger: a
// name relative to Dir, or one of "/dev/stdout"/"/dev/stderr"/"" to log to
// the console instead of rolling through lumberjack. The subsystem loggers
// always roll through lumberjack into their own files under Dir.
type Logger struct {
	Dir        string `json:"dir" mapstructure:"dir" ini:"dir" yaml:"dir"`
	File       string `json:"file" mapstructure:"file" ini:"file" yaml:"file"`
	Level      string `json:"level" mapstructure:"level" ini:"level" yaml:"level"`
	Format     string `json:"format" mapstructure:"format" ini:"format" yaml:"format"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age" ini:"max_age" yaml:"max_age"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size" ini:"max_size" yaml:"max_size"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" ini:"max_backups" yaml:"max_backups"`
}

func (*Logger) setDefault() {
	cv.SetDefault("logger.dir", ".")
	cv.SetDefault("logger.file", "docsession.log")
	cv.SetDefault("logger.level", "info")
	cv.SetDefault("logger.format", "json")
	cv.SetDefault("logger.max_age", 7)
	cv.SetDefault("logger.max_size", 100)
	cv.SetDefault("logger.max_backups", 10)
}
