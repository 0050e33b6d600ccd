package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Shanghai")
	if err != nil {
		panic(err)
	}
}

// force timezone to be the portal's because the daemon can be deployed
// anywhere and the report's date key has to match the portal's calendar
// day when formatting dates based on <time.Time>.Year()/Month()/Day()
func Now() time.Time {
	return time.Now().In(Location)
}

// DateKey renders the calendar day the portal expects in the `date`
// field of a submission record.
func DateKey(t time.Time) string {
	return t.In(Location).Format("20060102")
}
