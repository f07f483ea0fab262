package config

type WorkerKeyStruct struct {
	SecurityLogQueue    string
	TimeCheckpointQueue string
}

var WorkerKey = &WorkerKeyStruct{
	SecurityLogQueue:    "persist_security_log_queue",
	TimeCheckpointQueue: "persist_time_checkpoint_queue",
}
