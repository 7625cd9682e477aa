package hooks

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/srand/espilot/pkg/eventservice"
	"github.com/srand/espilot/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const testJob = `{
  "payload": {"payload": "athena.py --eventService", "output_file": "athena.stdout"},
  "event_ranges": [
    {"eventRangeID": "1-2-3-4-5", "startEvent": 1, "lastEvent": 1, "LFN": "EVNT.root", "GUID": "g", "scope": "mc"},
    {"eventRangeID": "1-2-3-5-5", "startEvent": 2, "lastEvent": 2, "LFN": "EVNT.root", "GUID": "g", "scope": "mc"},
    {"eventRangeID": "1-2-3-6-5", "startEvent": 3, "lastEvent": 3, "LFN": "EVNT.root", "GUID": "g", "scope": "mc"}
  ]
}`

type FileHookTestSuite struct {
	suite.Suite
	fs   utils.Fs
	hook *FileHook
}

func (s *FileHookTestSuite) SetupTest() {
	s.fs = afero.NewMemMapFs()
	s.Require().NoError(afero.WriteFile(s.fs, "/job/job.json", []byte(testJob), 0644))

	hook, err := NewFileHook(s.fs, "/job/job.json", "/job/status/dump.json")
	s.Require().NoError(err)
	s.hook = hook
}

func (s *FileHookTestSuite) TestPayload() {
	payload, err := s.hook.GetPayload()
	s.NoError(err)
	s.Equal("athena.py --eventService", payload.Command)
	s.Equal("athena.stdout", payload.OutputFile)
	s.Equal("", payload.ErrorFile)
}

func (s *FileHookTestSuite) TestExhaustion() {
	ranges, err := s.hook.GetEventRanges(2)
	s.NoError(err)
	s.Len(ranges, 2)
	s.Equal("1-2-3-4-5", ranges[0].ID())
	s.Equal("1-2-3-5-5", ranges[1].ID())
	s.Equal(1, s.hook.Remaining())

	ranges, err = s.hook.GetEventRanges(2)
	s.NoError(err)
	s.Len(ranges, 1)
	s.Equal("1-2-3-6-5", ranges[0].ID())

	for i := 0; i < 3; i++ {
		ranges, err = s.hook.GetEventRanges(2)
		s.NoError(err)
		s.Empty(ranges)
	}
	s.Equal(0, s.hook.Remaining())
}

func (s *FileHookTestSuite) TestZeroRequest() {
	ranges, err := s.hook.GetEventRanges(0)
	s.NoError(err)
	s.Empty(ranges)
	s.Equal(3, s.hook.Remaining())
}

func (s *FileHookTestSuite) TestOutcomes() {
	s.hook.GetEventRanges(3)

	s.hook.HandleOutMessage(eventservice.ParseOutMessage("out.root,ID:1-2-3-4-5,CPU:1,WALL:2"))
	s.hook.HandleOutMessage(eventservice.ParseOutMessage("ERR_ATHENAMP_PROCESS 1-2-3-5-5: Failed"))
	s.hook.HandleOutMessage(eventservice.ParseOutMessage("Hello world"))

	ranges := s.hook.Ranges()
	s.Require().Len(ranges, 3)

	s.Equal("finished", ranges[0].Status)
	s.Equal("out.root", ranges[0].Output)
	s.Equal(1.0, ranges[0].CPU)
	s.Equal(2.0, ranges[0].Wall)
	s.Equal(1, ranges[0].Attempts)

	s.Equal("failed", ranges[1].Status)
	s.Equal("ERR_ATHENAMP_PROCESS", ranges[1].Code)

	s.Equal(StatusPending, ranges[2].Status)

	dump := s.hook.StatusDump()
	s.Equal([]string{"Hello world"}, dump.Unrecognized)
	s.NotEmpty(dump.Node)
}

func (s *FileHookTestSuite) TestStatusDump() {
	s.hook.GetEventRanges(1)
	s.hook.HandleOutMessage(eventservice.ParseOutMessage("out.root,ID:1-2-3-4-5,CPU:1,WALL:2"))

	s.Require().NoError(s.hook.Close())

	dump, err := ReadStatusDump(s.fs, "/job/status/dump.json")
	s.Require().NoError(err)
	s.Equal(2, dump.Remaining)
	s.Require().Len(dump.Ranges, 1)
	s.Equal("1-2-3-4-5", dump.Ranges[0].ID)
	s.Equal("finished", dump.Ranges[0].Status)
	s.WithinDuration(time.Now(), dump.Written, time.Minute)
}

func (s *FileHookTestSuite) TestNoStatusDump() {
	hook, err := NewFileHook(s.fs, "/job/job.json", "")
	s.Require().NoError(err)
	s.NoError(hook.Close())
}

func TestFileHook(t *testing.T) {
	suite.Run(t, new(FileHookTestSuite))
}

func writeCompressed(t *testing.T, fs utils.Fs, path string, data []byte) {
	t.Helper()

	var buf bytes.Buffer
	writer, err := utils.NewCompressWriter(&buf, path)
	assert.NoError(t, err)
	writer.Write(data)
	assert.NoError(t, writer.Close())
	assert.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func TestFileHookCompressed(t *testing.T) {
	for _, path := range []string{"/job.json.gz", "/job.json.zst"} {
		t.Run(path, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeCompressed(t, fs, path, []byte(testJob))

			hook, err := NewFileHook(fs, path, path+".dump.gz")
			assert.NoError(t, err)

			ranges, err := hook.GetEventRanges(10)
			assert.NoError(t, err)
			assert.Len(t, ranges, 3)
			assert.Equal(t, json.Number("1"), ranges[0]["startEvent"])

			assert.NoError(t, hook.WriteStatusDump())
			dump, err := ReadStatusDump(fs, path+".dump.gz")
			assert.NoError(t, err)
			assert.Len(t, dump.Ranges, 3)
		})
	}
}

func TestLoadJobDescriptionNumericID(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/job.json", []byte(`{"payload":{"payload":"true"},"event_ranges":[{"eventRangeID":12345678,"startEvent":1}]}`), 0644)

	job, err := LoadJobDescription(fs, "/job.json")
	assert.NoError(t, err)
	assert.Len(t, job.EventRanges, 1)
	assert.Equal(t, "12345678", job.EventRanges[0].ID())

	line, err := eventservice.WireFormatV1.Encode(job.EventRanges[0])
	assert.NoError(t, err)
	assert.Equal(t, `[{"eventRangeID":12345678,"startEvent":1}]`, line)
}

func TestLoadJobDescriptionErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := LoadJobDescription(fs, "/missing.json")
	assert.Error(t, err)

	afero.WriteFile(fs, "/bad.json", []byte("{"), 0644)
	_, err = LoadJobDescription(fs, "/bad.json")
	assert.ErrorIs(t, err, ErrJobDescription)

	job, _ := json.Marshal(JobDescription{
		Payload: eventservice.PayloadSpec{Command: "true"},
		EventRanges: []eventservice.EventRange{
			{"eventRangeID": "a"},
			{"eventRangeID": "a"},
		},
	})
	afero.WriteFile(fs, "/dup.json", job, 0644)
	_, err = LoadJobDescription(fs, "/dup.json")
	assert.ErrorIs(t, err, ErrJobDescription)

	afero.WriteFile(fs, "/noid.json", []byte(`{"payload":{"payload":"true"},"event_ranges":[{"startEvent":1}]}`), 0644)
	_, err = LoadJobDescription(fs, "/noid.json")
	assert.ErrorIs(t, err, ErrJobDescription)

	afero.WriteFile(fs, "/nopayload.json", []byte(`{"event_ranges":[]}`), 0644)
	hook, err := NewFileHook(fs, "/nopayload.json", "")
	assert.NoError(t, err)
	_, err = hook.GetPayload()
	assert.ErrorIs(t, err, ErrJobDescription)
}
