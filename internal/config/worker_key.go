package config

type WorkerKeyStruct struct {
	PersistSnapshotsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSnapshotsQueue: "persist_snapshots_queue",
}
