package config

const (
	// BackendBeanstalk selects the beanstalkd adapter.
	BackendBeanstalk = "beanstalk"

	// BackendNSQ selects the NSQ adapter.
	BackendNSQ = "nsq"

	// BuriedSuffix is appended to an NSQ topic to form its quarantine topic.
	BuriedSuffix = ".buried"
)
