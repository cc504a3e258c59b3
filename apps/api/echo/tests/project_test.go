package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	. "github.com/parlemonde/clap-sub002/apps/api/echo"
	"github.com/parlemonde/clap-sub002/core/montage"
	"github.com/parlemonde/clap-sub002/core/project"
	"github.com/parlemonde/clap-sub002/core/timeline"
	testutil "github.com/parlemonde/clap-sub002/tests"
)

const (
	teacherEmail = "teacher@test.cd"
	otherEmail   = "other@test.cd"
)

var (
	errNotFound  = httpErr{Error: "not found"}
	errForbidden = httpErr{Error: "permission denied"}
)

func createProject(t *testing.T, f fixture, userID int, email, name string, seqs ...project.Sequence) project.Project {
	t.Helper()
	prj, err := f.svc.Create(context.Background(), project.Actor{UserID: userID, Email: email}, project.NewProject{
		Name:      name,
		Sequences: seqs,
	})
	require.NoError(t, err)
	return prj
}

func TestHome(t *testing.T) {
	f := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to "+f.conf.AppName+" API!", rec.Body.String())
}

func Test_projectApi_create(t *testing.T) {
	f := setup(t)
	token := teacherToken(t, f.conf, 1, teacherEmail)

	runTests(t, f.app, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodPost,
			path:     "/v1/projects",
			body:     []byte(`{"name":"Film"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "students cannot create",
			method:   http.MethodPost,
			path:     "/v1/projects",
			body:     []byte(`{"name":"Film"}`),
			token:    studentToken(t, f.conf, 1, 1),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "name required",
			method:   http.MethodPost,
			path:     "/v1/projects",
			body:     []byte(`{"name":""}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required"}`),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/projects", token,
		[]byte(`{"name":"  My film ","language":"EN","questions":[{"question":"Why?"},{"question":"How?"}]}`))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var prj project.Project
	unmarshal(t, rec, &prj)
	assert.Equal(t, 1, prj.ID)
	assert.Equal(t, 1, prj.UserID)
	assert.Equal(t, "My film", prj.Name)
	assert.Equal(t, "en", prj.Language)
	require.Len(t, prj.Data.Sequences, 2)
	assert.Equal(t, 1, prj.Data.Sequences[0].ID)
	assert.Equal(t, 2, prj.Data.Sequences[1].ID)
	assert.Equal(t, project.StatusStoryboard, prj.Data.Sequences[1].Status)

	saved, err := f.svc.Get(context.Background(), prj.ID)
	require.NoError(t, err)
	assert.Equal(t, teacherEmail, saved.OwnerEmail)
}

func Test_projectApi_retrieve(t *testing.T) {
	f := setup(t)
	prjA := createProject(t, f, 1, teacherEmail, "A", project.Sequence{Question: "Q1"})
	prjB := createProject(t, f, 2, otherEmail, "B", project.Sequence{Question: "Q1"})

	owner := teacherToken(t, f.conf, 1, teacherEmail)
	runTests(t, f.app, []httpTest{
		{
			name:     "owner",
			method:   http.MethodGet,
			path:     "/v1/projects/1",
			token:    owner,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, prjA),
		},
		{
			name:     "other teacher",
			method:   http.MethodGet,
			path:     "/v1/projects/1",
			token:    teacherToken(t, f.conf, 2, otherEmail),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "student of the project",
			method:   http.MethodGet,
			path:     "/v1/projects/2",
			token:    studentToken(t, f.conf, prjB.ID, 1),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, prjB),
		},
		{
			name:     "student of another project",
			method:   http.MethodGet,
			path:     "/v1/projects/1",
			token:    studentToken(t, f.conf, prjB.ID, 1),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "malformed id",
			method:   http.MethodGet,
			path:     "/v1/projects/abc",
			token:    owner,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "unknown id",
			method:   http.MethodGet,
			path:     "/v1/projects/99",
			token:    owner,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
	})
}

func Test_projectApi_query(t *testing.T) {
	f := setup(t)
	alpha := createProject(t, f, 1, teacherEmail, "Alpha")
	beta := createProject(t, f, 1, teacherEmail, "beta film")
	createProject(t, f, 2, otherEmail, "Alpha 2")

	token := teacherToken(t, f.conf, 1, teacherEmail)
	runTests(t, f.app, []httpTest{
		{
			name:     "own projects",
			method:   http.MethodGet,
			path:     "/v1/projects",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []project.Project{alpha, beta}),
		},
		{
			name:     "search",
			method:   http.MethodGet,
			path:     "/v1/projects?search=ALPHA",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []project.Project{alpha}),
		},
		{
			name:     "ordering",
			method:   http.MethodGet,
			path:     "/v1/projects?ordering=-id",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []project.Project{beta, alpha}),
		},
		{
			name:     "no match",
			method:   http.MethodGet,
			path:     "/v1/projects?search=gamma",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	})
}

func Test_projectApi_updateAndDelete(t *testing.T) {
	f := setup(t)
	createProject(t, f, 1, teacherEmail, "Mine")
	createProject(t, f, 2, otherEmail, "Theirs")

	token := teacherToken(t, f.conf, 1, teacherEmail)
	runTests(t, f.app, []httpTest{
		{
			name:     "students cannot update",
			method:   http.MethodPut,
			path:     "/v1/projects/1",
			body:     []byte(`{"name":"Hacked"}`),
			token:    studentToken(t, f.conf, 1, 1),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "invalid volume",
			method:   http.MethodPut,
			path:     "/v1/projects/1",
			body:     []byte(`{"soundVolume":500}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/v1/projects/1",
			body:     []byte(`{"name":"Renamed","soundUrl":"/api/audios/m.mp3","soundBeginTime":1000}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "delete many skips foreign projects",
			method:   http.MethodDelete,
			path:     "/v1/projects?id=1&id=2",
			token:    token,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "deleted",
			method:   http.MethodGet,
			path:     "/v1/projects/1",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
		{
			name:     "delete one",
			method:   http.MethodDelete,
			path:     "/v1/projects/2",
			token:    teacherToken(t, f.conf, 2, otherEmail),
			wantCode: http.StatusNoContent,
		},
	})

	ctx := context.Background()
	_, err := f.svc.Get(ctx, 1)
	assert.Equal(t, project.ErrNotFound, err)
	_, err = f.svc.Get(ctx, 2)
	assert.Equal(t, project.ErrNotFound, err)
}

func Test_projectApi_sequences(t *testing.T) {
	f := setup(t)
	createProject(t, f, 1, teacherEmail, "Film", project.Sequence{Question: "Q1"})
	token := teacherToken(t, f.conf, 1, teacherEmail)

	runTests(t, f.app, []httpTest{
		{
			name:     "add",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences",
			body:     []byte(`{"question":"Q2"}`),
			token:    token,
			wantCode: http.StatusCreated,
			wantData: marchallObj(t, project.Sequence{ID: 2, Question: "Q2", Plans: []project.Plan{}, Status: project.StatusStoryboard}),
		},
		{
			name:     "question required",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences",
			body:     []byte(`{"question":""}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"question":"this field is required"}`),
		},
		{
			name:     "reorder must be a permutation",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/order",
			body:     []byte(`{"order":[1]}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"order":"must list every sequence exactly once"}`),
		},
		{
			name:     "reorder",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/order",
			body:     []byte(`{"order":[2,1]}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1",
			body:     []byte(`{"question":"Q1 bis","soundUrl":"/api/audios/v.mp3","voiceOffBeginTime":-500}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown sequence",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/9",
			body:     []byte(`{"question":"?"}`),
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: project.ErrSequenceNotFound.Error()}),
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/sequences/2",
			token:    token,
			wantCode: http.StatusNoContent,
		},
	})

	prj, err := f.svc.Get(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, prj.Data.Sequences, 1)
	seq := prj.Data.Sequences[0]
	assert.Equal(t, "Q1 bis", seq.Question)
	assert.Equal(t, "/api/audios/v.mp3", seq.SoundURL)
	assert.Equal(t, null.IntFrom(-500), seq.VoiceOffBeginTime)
}

func Test_projectApi_plans(t *testing.T) {
	f := setup(t)
	createProject(t, f, 1, teacherEmail, "Film", project.Sequence{
		Question: "Q1",
		Title:    &project.Title{Text: "Intro", Duration: 2000},
		Plans: []project.Plan{
			{ID: 1, Description: "a", Duration: 3000},
			{ID: 2, Description: "b", ImageURL: "/api/images/b.jpg", Duration: 2000},
		},
	})
	token := teacherToken(t, f.conf, 1, teacherEmail)

	runTests(t, f.app, []httpTest{
		{
			name:     "add",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences/1/plans",
			body:     []byte(`{"description":"c","duration":1000}`),
			token:    token,
			wantCode: http.StatusCreated,
			wantData: marchallObj(t, project.Plan{ID: 3, Description: "c", Duration: 1000}),
		},
		{
			name:     "reorder",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1/plans/order",
			body:     []byte(`{"order":[3,1,2]}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1/plans/3",
			body:     []byte(`{"duration":4000}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/sequences/1/plans/3",
			token:    token,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "unknown plan",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/sequences/1/plans/42",
			token:    token,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: project.ErrPlanNotFound.Error()}),
		},
		{
			name:     "shift boundary",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences/1/boundaries",
			body:     []byte(`{"index":1,"delta":500}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "no boundary",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences/1/boundaries",
			body:     []byte(`{"index":5,"delta":10}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: timeline.ErrNoBoundary.Error()}),
		},
		{
			name:     "add time",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences/1/time",
			body:     []byte(`{"action":"add"}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown time action",
			method:   http.MethodPost,
			path:     "/v1/projects/1/sequences/1/time",
			body:     []byte(`{"action":"shrink"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
	})

	prj, err := f.svc.Get(context.Background(), 1)
	require.NoError(t, err)
	plans := prj.Data.Sequences[0].Plans
	require.Len(t, plans, 2)
	assert.Equal(t, 3500, plans[0].Duration)
	assert.Equal(t, 2500, plans[1].Duration)
}

func Test_projectApi_timeline(t *testing.T) {
	f := setup(t)
	prj := createProject(t, f, 1, teacherEmail, "Film",
		project.Sequence{
			Question:          "Q1",
			Title:             &project.Title{Text: "Intro", Duration: 1000},
			Plans:             []project.Plan{{ID: 1, ImageURL: "/api/images/a.jpg", Duration: 2000}},
			SoundURL:          "/api/audios/v.mp3",
			VoiceOffBeginTime: null.IntFrom(-500),
		},
		project.Sequence{Question: "Q2"},
		project.Sequence{Question: "Q3", Plans: []project.Plan{{ID: 1, Description: "x", Duration: 3000}}},
	)
	music, beginTime := "/api/audios/m.mp3", 1000
	_, err := f.svc.Update(context.Background(), prj.ID, project.UpdateProject{SoundURL: &music, SoundBeginTime: &beginTime})
	require.NoError(t, err)

	token := studentToken(t, f.conf, prj.ID, 1)

	req, rec := newAuthRequest(http.MethodGet, "/v1/projects/1/timeline", token)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tl timeline.Timeline
	unmarshal(t, rec, &tl)
	assert.Equal(t, 6000, tl.Duration)
	assert.Equal(t, "0:06", tl.FormattedDuration)
	assert.Equal(t, []timeline.Span{
		{SequenceID: 1, Index: 0, Begin: 0, End: 3000, Duration: 3000},
		{SequenceID: 3, Index: 2, Begin: 3000, End: 6000, Duration: 3000},
	}, tl.Spans)
	assert.Equal(t, []timeline.Sound{
		{SequenceID: 1, URL: "/api/audios/v.mp3", Volume: 100, BeginTime: 0, DeltaBeginTime: 500, MaxDuration: 3000},
	}, tl.Sounds)
	require.NotNil(t, tl.Music)
	assert.Equal(t, timeline.Music{URL: music, Volume: 100, BeginTime: 1000}, *tl.Music)

	runTests(t, f.app, []httpTest{
		{
			name:     "title frame",
			method:   http.MethodGet,
			path:     "/v1/projects/1/timeline/frame?t=500",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, timeline.Frame{
				Kind:       timeline.FrameTitle,
				SequenceID: 1,
				Title:      &project.Title{Text: "Intro", Duration: 1000},
				Begin:      0,
				End:        1000,
			}),
		},
		{
			name:     "image frame",
			method:   http.MethodGet,
			path:     "/v1/projects/1/timeline/frame?t=1500",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, timeline.Frame{
				Kind:       timeline.FrameImage,
				SequenceID: 1,
				PlanID:     1,
				ImageURL:   "/api/images/a.jpg",
				Begin:      1000,
				End:        3000,
			}),
		},
		{
			name:     "after the end",
			method:   http.MethodGet,
			path:     "/v1/projects/1/timeline/frame?t=6000",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, timeline.Frame{Kind: timeline.FrameEmpty}),
		},
		{
			name:     "malformed time",
			method:   http.MethodGet,
			path:     "/v1/projects/1/timeline/frame?t=abc",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"t":"must be a number of milliseconds"}`),
		},
		{
			name:     "audio before the music",
			method:   http.MethodGet,
			path:     "/v1/projects/1/timeline/audio?t=500",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, AudioResponse{
				Time: 500,
				Sounds: []timeline.ActiveSound{{
					Sound:    tl.Sounds[0],
					Position: 1000,
				}},
			}),
		},
		{
			name:     "audio with the music",
			method:   http.MethodGet,
			path:     "/v1/projects/1/timeline/audio?t=4000",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, AudioResponse{
				Time:   4000,
				Sounds: []timeline.ActiveSound{},
				Music:  &MusicCursor{URL: music, Volume: 100, Position: 3000},
			}),
		},
	})
}

func Test_projectApi_collaboration(t *testing.T) {
	f := setup(t)
	createProject(t, f, 1, teacherEmail, "Film", project.Sequence{Question: "Q1"}, project.Sequence{Question: "Q2"})
	owner := teacherToken(t, f.conf, 1, teacherEmail)

	req, rec := newAuthRequest(http.MethodPost, "/v1/projects/1/collaboration", owner)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var prj project.Project
	unmarshal(t, rec, &prj)
	require.Len(t, prj.CollaborationCode, 6)
	code := prj.CollaborationCode

	runTests(t, f.app, []httpTest{
		{
			name:     "join unknown question",
			method:   http.MethodPost,
			path:     "/v1/join",
			body:     marchallObj(t, JoinRequest{Code: code, QuestionID: 9}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"questionId": project.ErrSequenceNotFound.Error()}),
		},
		{
			name:     "join malformed code",
			method:   http.MethodPost,
			path:     "/v1/join",
			body:     []byte(`{"code":"abc","questionId":1}`),
			wantCode: http.StatusBadRequest,
		},
	})

	req, rec = newRequest(http.MethodPost, "/v1/join", marchallObj(t, JoinRequest{Code: code, QuestionID: 1}))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var joined JoinResponse
	unmarshal(t, rec, &joined)
	assert.Equal(t, 1, joined.Project.ID)
	student := joined.Token

	runTests(t, f.app, []httpTest{
		{
			name:     "student reads the project",
			method:   http.MethodGet,
			path:     "/v1/projects/1",
			token:    student,
			wantCode: http.StatusOK,
		},
		{
			name:     "student edits their sequence",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1",
			body:     []byte(`{"voiceText":"Hello"}`),
			token:    student,
			wantCode: http.StatusOK,
		},
		{
			name:     "student cannot edit another sequence",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/2",
			body:     []byte(`{"voiceText":"Hello"}`),
			token:    student,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: project.ErrForbidden.Error()}),
		},
		{
			name:     "student cannot delete their sequence",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/sequences/1",
			token:    student,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: project.ErrForbidden.Error()}),
		},
		{
			name:     "student asks for a validation",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1/status",
			body:     []byte(`{"status":"storyboard-validating"}`),
			token:    student,
			wantCode: http.StatusOK,
		},
		{
			name:     "student cannot validate",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1/status",
			body:     []byte(`{"status":"validated"}`),
			token:    student,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "student cannot export",
			method:   http.MethodGet,
			path:     "/v1/projects/1/montage.mlt",
			token:    student,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "teacher validates with a feedback",
			method:   http.MethodPut,
			path:     "/v1/projects/1/sequences/1/status",
			body:     []byte(`{"status":"pre-mounting","feedback":"Nice"}`),
			token:    owner,
			wantCode: http.StatusOK,
		},
	})

	sent := f.mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, teacherEmail, sent[0].To[0].Address)

	prj, err := f.svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", prj.Data.Sequences[0].VoiceText)
	assert.Equal(t, project.StatusPreMounting, prj.Data.Sequences[0].Status)
	assert.Equal(t, []string{"Nice"}, prj.Data.Sequences[0].Feedbacks)

	req, rec = newAuthRequest(http.MethodGet, "/v1/projects/1/collaboration-url", student)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cu CollaborationURLResponse
	unmarshal(t, rec, &cu)
	assert.Equal(t, "clap_project_1", cu.Room)
	assert.True(t, strings.HasPrefix(cu.URL, f.conf.Collaboration.ServerURL+"?"), cu.URL)
	assert.Contains(t, cu.URL, "room=clap_project_1")
	assert.Contains(t, cu.URL, "signature=")

	runTests(t, f.app, []httpTest{
		{
			name:     "students cannot end the collaboration",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/collaboration",
			token:    student,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "end",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/collaboration",
			token:    owner,
			wantCode: http.StatusOK,
		},
		{
			name:     "end twice",
			method:   http.MethodDelete,
			path:     "/v1/projects/1/collaboration",
			token:    owner,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: project.ErrNoCollaboration.Error()}),
		},
		{
			name:     "join with a released code",
			method:   http.MethodPost,
			path:     "/v1/join",
			body:     marchallObj(t, JoinRequest{Code: code, QuestionID: 1}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"code": project.ErrInvalidCode.Error()}),
		},
	})
}

func Test_projectApi_montage(t *testing.T) {
	f := setup(t)
	testutil.WriteMedia(t, f.conf.Media.Dir, montage.FileImage, "a.jpg", []byte("jpg"))
	createProject(t, f, 1, teacherEmail, "Film", project.Sequence{
		Question: "Q1",
		Plans:    []project.Plan{{ID: 1, ImageURL: "/api/images/a.jpg", Duration: 2000}},
	})
	owner := teacherToken(t, f.conf, 1, teacherEmail)
	other := teacherToken(t, f.conf, 2, otherEmail)

	// mlt export
	req, rec := newAuthRequest(http.MethodGet, "/v1/projects/1/montage.mlt", owner)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "xml")
	assert.Contains(t, rec.Body.String(), "<mlt")
	assert.Contains(t, rec.Body.String(), f.conf.Media.HostURL+"/api/images/a.jpg")

	// archive job
	req, rec = newAuthRequest(http.MethodPost, "/v1/projects/1/montage", owner)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job montage.Job
	unmarshal(t, rec, &job)
	assert.Equal(t, 1, job.ProjectID)

	jobPath := "/v1/montages/" + job.ID
	require.Eventually(t, func() bool {
		req, rec := newAuthRequest(http.MethodGet, jobPath, owner)
		f.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			return false
		}
		var got montage.Job
		unmarshal(t, rec, &got)
		return got.State == montage.JobSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	prj, err := f.svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, job.ID, prj.VideoJobID)

	req, rec = newAuthRequest(http.MethodGet, jobPath+"/Montage.zip", owner)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Montage.zip")
	assert.NotZero(t, rec.Body.Len())

	jobNotFound := marchallObj(t, httpErr{Error: montage.ErrJobNotFound.Error()})
	runTests(t, f.app, []httpTest{
		{
			name:     "other teacher",
			method:   http.MethodGet,
			path:     jobPath,
			token:    other,
			wantCode: http.StatusNotFound,
			wantData: jobNotFound,
		},
		{
			name:     "other teacher download",
			method:   http.MethodGet,
			path:     jobPath + "/Montage.zip",
			token:    other,
			wantCode: http.StatusNotFound,
			wantData: jobNotFound,
		},
		{
			name:     "malformed job id",
			method:   http.MethodGet,
			path:     "/v1/montages/not-a-job",
			token:    owner,
			wantCode: http.StatusNotFound,
			wantData: jobNotFound,
		},
		{
			name:     "students cannot follow jobs",
			method:   http.MethodGet,
			path:     jobPath,
			token:    studentToken(t, f.conf, 1, 1),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
	})
}
