package config

const (
	SESSION_TASK_POOL_SIZE        = "SESSION_TASK_POOL_SIZE"        //nolint:staticcheck
	SESSION_POISON_ON_FLUSH_ERROR = "SESSION_POISON_ON_FLUSH_ERROR" //nolint:staticcheck
	SESSION_FLUSH_TIMEOUT         = "SESSION_FLUSH_TIMEOUT"         //nolint:staticcheck
)

// Session tunes the unit-of-work session package's runtime behavior.
type Session struct {
	TaskPoolSize       int    `json:"task_pool_size" mapstructure:"task_pool_size" ini:"task_pool_size" yaml:"task_pool_size"`
	PoisonOnFlushError bool   `json:"poison_on_flush_error" mapstructure:"poison_on_flush_error" ini:"poison_on_flush_error" yaml:"poison_on_flush_error"`
	FlushTimeout       string `json:"flush_timeout" mapstructure:"flush_timeout" ini:"flush_timeout" yaml:"flush_timeout"`
}

func (*Session) setDefault() {
	cv.SetDefault("session.task_pool_size", 4)
	cv.SetDefault("session.poison_on_flush_error", true)
	cv.SetDefault("session.flush_timeout", "30s")
}
