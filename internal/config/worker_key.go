package config

type WorkerKeyStruct struct {
	ReportEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ReportEventsQueue: "report_events_queue",
}
