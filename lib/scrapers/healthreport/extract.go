package healthreport

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"carder-backend/lib/timezone"
)

// Record is one day's submission form, keyed by the portal's own field
// names. Values keep the json.Number representation of whatever the
// page embedded so they form-encode back byte-for-byte.
type Record map[string]any

func (r Record) FormValues() map[string]string {
	values := make(map[string]string, len(r))
	for key, value := range r {
		values[key] = fmt.Sprint(value)
	}
	return values
}

func (r Record) Name() string {
	name, _ := r["name"].(string)
	return name
}

// the page embeds its state as javascript literals inside an inline
// script, so this is regex territory rather than DOM territory
var (
	oldInfoRegex  = regexp.MustCompile(`oldInfo: ({[^\n]+})`)
	defaultsRegex = regexp.MustCompile(`def = ({[^\n]+})`)
	realnameRegex = regexp.MustCompile(`realname: "([^"]+)",`)
	numberRegex   = regexp.MustCompile(`number: '([^']+)',`)
)

// fields that must describe today rather than carry over from the
// prior record
var resetFields = map[string]any{
	"jrdqtlqk[]": json.Number("0"),
	"jrdqjcqk[]": json.Number("0"),
	"jcqzrq":     "",
	"gwszdd":     "",
	"szgjcs":     "",
}

func decodeFragment(fragment string) (Record, error) {
	record := Record{}
	decoder := json.NewDecoder(strings.NewReader(fragment))
	decoder.UseNumber()
	err := decoder.Decode(&record)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", FragmentInvalid, err)
	}
	return record, nil
}

// Extract mines the report page for the prior accepted record (the
// `oldInfo` fragment, or the page's live `def` fragment when the
// account has never had a report accepted) plus the identity fields,
// and derives today's record from them: identity, date, creation
// timestamp and the daily symptom fields are overwritten, every other
// prior answer carries forward untouched, which is exactly the
// portal's own prefill behavior.
func Extract(html string, now time.Time) (Record, error) {
	priorMatch := oldInfoRegex.FindStringSubmatch(html)
	if priorMatch == nil {
		priorMatch = defaultsRegex.FindStringSubmatch(html)
	}
	if priorMatch == nil {
		return nil, fmt.Errorf("%w: no oldInfo or def fragment", NoPriorRecord)
	}
	prior, err := decodeFragment(priorMatch[1])
	if err != nil {
		return nil, err
	}

	defaultsMatch := defaultsRegex.FindStringSubmatch(html)
	if defaultsMatch == nil {
		return nil, fmt.Errorf("%w: no def fragment", NoPriorRecord)
	}
	defaults, err := decodeFragment(defaultsMatch[1])
	if err != nil {
		return nil, err
	}
	id, ok := defaults["id"]
	if !ok {
		return nil, fmt.Errorf("%w: def fragment has no id continuation", NoPriorRecord)
	}

	nameMatch := realnameRegex.FindStringSubmatch(html)
	if nameMatch == nil {
		return nil, fmt.Errorf("%w: realname field", NoPriorRecord)
	}
	numberMatch := numberRegex.FindStringSubmatch(html)
	if numberMatch == nil {
		return nil, fmt.Errorf("%w: number field", NoPriorRecord)
	}

	record := make(Record, len(prior)+len(resetFields)+5)
	for key, value := range prior {
		record[key] = value
	}
	record["id"] = id
	record["name"] = nameMatch[1]
	record["number"] = numberMatch[1]
	record["date"] = timezone.DateKey(now)
	record["created"] = now.Unix()
	for key, value := range resetFields {
		record[key] = value
	}

	return record, nil
}
