package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"lms_mirror/internal/domain"
	"lms_mirror/internal/service/mocks"
	"lms_mirror/internal/state"
	"lms_mirror/internal/storage"
)

var downloadTime = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

type DownloadServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	publisher *mocks.MockPublisher
	notifier  *mocks.MockNotifier

	data     *state.Data
	settings *state.Settings
	service  *DownloadService
	ctx      context.Context
}

func (s *DownloadServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.ctx = context.Background()

	s.source.EXPECT().ID().Return("test-source").AnyTimes()

	s.data = state.NewData()
	s.data.MergeModules(domain.NewDataItems([]domain.Module{
		{ID: "10", Code: "CS1010", Term: "2020", IsTaking: true, LastUpdated: fetchTime},
	}, fetchTime))
	_, err := s.data.MergeResources(domain.CategoryFiles, domain.NewDataItems([]domain.ResourceState{
		{ModuleID: "10", Path: "Lectures/a.pdf", LastUpdated: fetchTime, Remote: "a"},
		{ModuleID: "10", Path: "b.pdf", LastUpdated: fetchTime, Remote: "b"},
		{ModuleID: "10", Path: "stale.pdf", LastUpdated: fetchTime},
		{ModuleID: "99", Path: "orphan.pdf", LastUpdated: fetchTime, Remote: "orphan"},
	}, fetchTime))
	s.Require().NoError(err)

	store := storage.New(storage.NewFileBackendWithFS(afero.NewMemMapFs(), "/config"), state.DataFileName, state.NewData, storage.WithCooldown(0))
	s.Require().NoError(store.Flush(s.ctx, s.data))

	s.settings = state.NewSettings()
	s.settings.SetDownloadLocation("/dl")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.service = NewDownloadService(s.source, s.data, s.settings, s.publisher, s.notifier, 2, logger)
	s.service.now = func() time.Time { return downloadTime }
}

func (s *DownloadServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDownloadServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DownloadServiceTestSuite))
}

func (s *DownloadServiceTestSuite) TestDownload_RecordsRelativePath() {
	key := domain.ResourceKey{ModuleID: "10", Path: "Lectures/a.pdf"}

	s.source.EXPECT().Download(s.ctx, gomock.Any(), "/dl/CS1010/Files/Lectures/a.pdf").
		Return(domain.DownloadResult{Outcome: domain.OutcomeNewFile, Path: "/dl/CS1010/Files/Lectures/a.pdf"}, nil)
	s.notifier.EXPECT().Notify()
	s.publisher.EXPECT().PublishDownload(s.ctx, &domain.DownloadRecord{
		Category:     domain.CategoryFiles,
		ModuleID:     "10",
		Path:         "Lectures/a.pdf",
		LocalPath:    "CS1010/Files/Lectures/a.pdf",
		Outcome:      domain.OutcomeNewFile,
		DownloadedAt: downloadTime,
	}).Return(nil)

	result, err := s.service.Download(s.ctx, domain.CategoryFiles, key)

	s.NoError(err)
	s.Equal(domain.OutcomeNewFile, result.Outcome)

	r, err := s.data.Resource(domain.CategoryFiles, key)
	s.Require().NoError(err)
	s.Require().NotNil(r.DownloadPath)
	s.Equal("CS1010/Files/Lectures/a.pdf", *r.DownloadPath)
	s.Equal(downloadTime, *r.DownloadTime)
	s.Equal(domain.DownloadIdle, r.DownloadStatus)
	s.Equal(storage.Dirty, s.data.Tracker().State())
}

func (s *DownloadServiceTestSuite) TestDownload_RenamedRecordsNewPath() {
	key := domain.ResourceKey{ModuleID: "10", Path: "b.pdf"}

	s.source.EXPECT().Download(s.ctx, gomock.Any(), "/dl/CS1010/Files/b.pdf").
		Return(domain.DownloadResult{Outcome: domain.OutcomeRenamed, Path: "/dl/CS1010/Files/b (1).pdf"}, nil)
	s.notifier.EXPECT().Notify()
	s.publisher.EXPECT().PublishDownload(s.ctx, gomock.Any()).Return(nil)

	_, err := s.service.Download(s.ctx, domain.CategoryFiles, key)
	s.Require().NoError(err)

	r, _ := s.data.Resource(domain.CategoryFiles, key)
	s.Equal("CS1010/Files/b (1).pdf", *r.DownloadPath)
}

func (s *DownloadServiceTestSuite) TestDownload_UnknownModuleFolder() {
	key := domain.ResourceKey{ModuleID: "99", Path: "orphan.pdf"}

	s.source.EXPECT().Download(s.ctx, gomock.Any(), "/dl/Unknown/Files/orphan.pdf").
		Return(domain.DownloadResult{Outcome: domain.OutcomeAlreadySatisfied, Path: "/dl/Unknown/Files/orphan.pdf"}, nil)
	s.notifier.EXPECT().Notify()
	s.publisher.EXPECT().PublishDownload(s.ctx, gomock.Any()).Return(nil)

	_, err := s.service.Download(s.ctx, domain.CategoryFiles, key)
	s.NoError(err)
}

func (s *DownloadServiceTestSuite) TestDownload_RequiresRemoteHandle() {
	_, err := s.service.Download(s.ctx, domain.CategoryFiles, domain.ResourceKey{ModuleID: "10", Path: "stale.pdf"})

	s.ErrorIs(err, domain.ErrNoRemoteHandle)
}

func (s *DownloadServiceTestSuite) TestDownload_UnknownResource() {
	_, err := s.service.Download(s.ctx, domain.CategoryFiles, domain.ResourceKey{ModuleID: "10", Path: "nope.pdf"})

	s.ErrorIs(err, domain.ErrResourceNotFound)
}

func (s *DownloadServiceTestSuite) TestDownload_Failure() {
	key := domain.ResourceKey{ModuleID: "10", Path: "b.pdf"}
	s.source.EXPECT().Download(s.ctx, gomock.Any(), gomock.Any()).Return(domain.DownloadResult{}, errors.New("403"))

	_, err := s.service.Download(s.ctx, domain.CategoryFiles, key)

	s.ErrorIs(err, domain.ErrRemote)
	r, _ := s.data.Resource(domain.CategoryFiles, key)
	s.Equal(domain.DownloadError, r.DownloadStatus)
	s.False(r.IsDownloaded())
	s.Equal(storage.Clean, s.data.Tracker().State())
}

func (s *DownloadServiceTestSuite) TestDownloadAll_SkipsDownloadedAndHandleless() {
	s.Require().NoError(s.data.RecordDownload(domain.CategoryFiles, domain.ResourceKey{ModuleID: "10", Path: "b.pdf"}, "CS1010/Files/b.pdf", fetchTime))

	var (
		mu   sync.Mutex
		seen []string
	)
	s.source.EXPECT().Download(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r domain.ResourceState, destination string) (domain.DownloadResult, error) {
			mu.Lock()
			seen = append(seen, r.Path)
			mu.Unlock()
			return domain.DownloadResult{Outcome: domain.OutcomeNewFile, Path: destination}, nil
		}).
		Times(2)
	s.notifier.EXPECT().Notify().Times(2)
	s.publisher.EXPECT().PublishDownload(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	n, err := s.service.DownloadAll(s.ctx, domain.CategoryFiles)

	s.NoError(err)
	s.Equal(2, n)
	s.ElementsMatch([]string{"Lectures/a.pdf", "orphan.pdf"}, seen)

	files, _ := s.data.Resources(domain.CategoryFiles)
	s.Equal(domain.FetchIdle, files.DownloadAllStatus)
}

func (s *DownloadServiceTestSuite) TestDownloadAll_PartialFailure() {
	s.source.EXPECT().Download(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r domain.ResourceState, destination string) (domain.DownloadResult, error) {
			if r.Path == "b.pdf" {
				return domain.DownloadResult{}, errors.New("reset by peer")
			}
			return domain.DownloadResult{Outcome: domain.OutcomeOverwritten, Path: destination}, nil
		}).
		Times(3)
	s.notifier.EXPECT().Notify().Times(2)
	s.publisher.EXPECT().PublishDownload(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	n, err := s.service.DownloadAll(s.ctx, domain.CategoryFiles)

	s.ErrorIs(err, domain.ErrRemote)
	s.Equal(2, n)

	files, _ := s.data.Resources(domain.CategoryFiles)
	s.Equal(domain.FetchError, files.DownloadAllStatus)
}
