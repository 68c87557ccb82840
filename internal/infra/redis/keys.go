package redis

import "fmt"

// sessionKey holds the JSON snapshot of a user's quiz session.
func sessionKey(key int64) string {
	return fmt.Sprintf("quiz:session:%d", key)
}

// pollKey maps one poll id to its PollRef.
func pollKey(pollID string) string {
	return "quiz:poll:" + pollID
}

// sessionPollsKey is the set of poll ids dispatched for a user.
func sessionPollsKey(key int64) string {
	return fmt.Sprintf("quiz:session:%d:polls", key)
}
