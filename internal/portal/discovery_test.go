package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scheduleHTML = `
<html><body>
<h2>Attendance for FIT1045</h2>
<table>
<tr><th>Unit</th><th>Activity</th><th>Status</th></tr>
<tr><td>FIT1045</td><td>Applied Laboratory 01</td>
    <td><img src="/img/question.png"><a href="Entry.aspx?d=20_Aug_25&amp;e=1">enter code</a></td></tr>
<tr><td>FIT1045</td><td>Tutorial 02</td>
    <td><img src="/img/tick.png">recorded</td></tr>
<tr><td>FIT2004</td><td>Seminar 01</td><td>PASS</td></tr>
<tr><td>FIT2004</td><td>Workshop 03</td>
    <td><img src="/img/question.png"><a href="Entry.aspx?d=22_Aug_25&amp;e=4">enter code</a></td></tr>
</table>
</body></html>`

func TestCoursesFromHTML(t *testing.T) {
	got := CoursesFromHTML(scheduleHTML)
	assert.Equal(t, []string{"FIT1045", "FIT2004"}, got)

	assert.Empty(t, CoursesFromHTML("<html><body><p>nothing here</p></body></html>"))
}

func TestPendingAnchorsFromHTML(t *testing.T) {
	got := PendingAnchorsFromHTML(scheduleHTML)
	assert.Equal(t, []string{"20_Aug_25", "22_Aug_25"}, got)
}

func TestPendingCoursesSkipTickAndPass(t *testing.T) {
	got := PendingCoursesFromHTML(scheduleHTML)
	assert.Equal(t, []string{"FIT1045", "FIT2004"}, got)

	onlyDone := `
	<table>
	<tr><td>FIT1045</td><td><img src="/img/tick.png"></td></tr>
	<tr><td>FIT2004</td><td>PASS</td></tr>
	</table>`
	assert.Empty(t, PendingCoursesFromHTML(onlyDone))
}

func TestPendingEntriesFromHTML(t *testing.T) {
	anchor, err := ParseAnchor("20_Aug_25")
	require.NoError(t, err)

	entries := pendingEntriesFromHTML(scheduleHTML, anchor, "FIT1045")
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "Applied Laboratory 01")
	assert.Contains(t, entries[0].Href, "d=20_Aug_25")

	// Ticked rows are never pending, even for the right course.
	assert.Empty(t, pendingEntriesFromHTML(scheduleHTML, anchor, "FIT9999"))
}

func TestPendingEntriesScopedToDayPanel(t *testing.T) {
	html := `
	<div id="dayPanel_20_Aug_25"><table>
	<tr><td>FIT1045 Lab 01</td>
	    <td><img src="question.png"><a href="Entry.aspx?d=20_Aug_25">go</a></td></tr>
	</table></div>
	<div id="dayPanel_22_Aug_25"><table>
	<tr><td>FIT1045 Tut 02</td>
	    <td><img src="question.png"><a href="Entry.aspx?d=22_Aug_25">go</a></td></tr>
	</table></div>`

	anchor, err := ParseAnchor("20_Aug_25")
	require.NoError(t, err)

	entries := pendingEntriesFromHTML(html, anchor, "FIT1045")
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Text, "Lab 01")
}
