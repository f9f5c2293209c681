package queue

import "time"

// Key layout in the shared store:
//
//	contentq:jobs                  hash   job id -> serialized Job JSON
//	contentq:pending:<type>        zset   dequeue-eligible jobs, priority score
//	contentq:delayed:<type>        zset   deferred/backoff jobs, score = ready time (ms)
//	contentq:processing            zset   in-flight jobs, score = deadline (ms)
//	contentq:dead                  zset   exhausted jobs, score = failure time (ms)
//	contentq:batch:<id>            hash   batch record, field per attribute
//	contentq:batch:<id>:jobs       set    member job ids
//	contentq:stats:<yyyy-mm-dd>    hash   "<type>:<event>" -> count
//	contentq:failures:recent       list   newest-first dead-letter summaries
const (
	jobsKey           = "contentq:jobs"
	processingKey     = "contentq:processing"
	deadKey           = "contentq:dead"
	recentFailuresKey = "contentq:failures:recent"
)

// recentFailuresMax bounds the operator-facing failure feed.
const recentFailuresMax = 100

func pendingKey(t JobType) string { return "contentq:pending:" + string(t) }

func delayedKey(t JobType) string { return "contentq:delayed:" + string(t) }

func batchKey(id string) string { return "contentq:batch:" + id }

func batchJobsKey(id string) string { return "contentq:batch:" + id + ":jobs" }

func statsKey(day time.Time) string {
	return "contentq:stats:" + day.UTC().Format("2006-01-02")
}
