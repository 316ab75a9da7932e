package config

type WorkerKeyStruct struct {
	PlagiarismCheckQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PlagiarismCheckQueue: "plagiarism_check_queue",
}
