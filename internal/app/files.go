package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"teamdesk/api/internal/blob"
	"teamdesk/api/internal/rbac"
	"teamdesk/api/internal/realtime"
	"teamdesk/api/internal/store"
	"teamdesk/api/internal/util"
)

const (
	EventFileUploaded  = "file:uploaded"
	EventFileDeleted   = "file:deleted"
	EventFolderCreated = "folder:created"
	EventFolderDeleted = "folder:deleted"

	activityLimit = 100
)

type FolderResult struct {
	Folder       store.Folder
	FilesDeleted int64
	Effects      Effects
}

type FileResult struct {
	File    store.FileObject
	Effects Effects
}

// fileAccess is a user standing in relation to one project.
type fileAccess struct {
	user     store.User
	project  store.Project
	relation rbac.Relation
}

func (a fileAccess) can(action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(a.user.Role), a.relation, action)
}

func unauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func (s *Service) caller(ctx context.Context, userID store.Ref) (store.User, error) {
	if userID.IsZero() {
		return store.User{}, unauthorized()
	}
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, unauthorized()
	}
	return user, err
}

func (s *Service) access(ctx context.Context, userID, projectID store.Ref) (fileAccess, error) {
	user, err := s.caller(ctx, userID)
	if err != nil {
		return fileAccess{}, err
	}
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return fileAccess{}, err
	}
	relation := rbac.RelationNone
	switch {
	case project.LeaderID == user.ID:
		relation = rbac.RelationLeader
	case store.ContainsRef(project.MemberIDs, user.ID):
		relation = rbac.RelationMember
	}
	return fileAccess{user: user, project: project, relation: relation}, nil
}

func (s *Service) folderAccess(ctx context.Context, userID, folderID store.Ref) (store.Folder, fileAccess, error) {
	folder, err := s.store.GetFolder(ctx, folderID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Folder{}, fileAccess{}, notFound("Folder")
	}
	if err != nil {
		return store.Folder{}, fileAccess{}, err
	}
	acc, err := s.access(ctx, userID, folder.ProjectID)
	return folder, acc, err
}

// AccessibleProjects lists every project for admin-class users and the
// led or joined projects for everyone else.
func (s *Service) AccessibleProjects(ctx context.Context, userID store.Ref) ([]store.Project, error) {
	user, err := s.caller(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rbac.IsAdminClass(user.Role) {
		return s.store.ListProjects(ctx, store.ProjectFilter{})
	}
	return s.store.ListProjects(ctx, store.ProjectFilter{ForUser: user.ID})
}

func (s *Service) ListFolders(ctx context.Context, userID, projectID store.Ref) ([]store.Folder, error) {
	acc, err := s.access(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !acc.can(rbac.ActionViewFiles) {
		return nil, forbidden("Unauthorized")
	}
	return s.store.ListFolders(ctx, projectID)
}

func (s *Service) CreateFolder(ctx context.Context, userID, projectID store.Ref, name string) (FolderResult, error) {
	name = strings.TrimSpace(name)
	if name == "" || projectID.IsZero() {
		return FolderResult{}, invalid("Folder name and project_id required")
	}
	acc, err := s.access(ctx, userID, projectID)
	if err != nil {
		return FolderResult{}, err
	}
	if !acc.can(rbac.ActionAddFolder) {
		return FolderResult{}, forbidden("Unauthorized")
	}

	folder := store.Folder{ID: store.NewRef(), ProjectID: projectID, Name: name, CreatedBy: acc.user.ID, CreatedAt: s.now()}
	if err := s.store.InsertFolder(ctx, folder); err != nil {
		return FolderResult{}, fmt.Errorf("create folder: %w", err)
	}
	result := FolderResult{Folder: folder}
	s.logActivity(ctx, acc, "create_folder", folder, "", &result.Effects)
	s.emit(ctx, &result.Effects, EventFolderCreated, folder, realtime.ProjectRoom(projectID))
	s.finish("create folder", result.Effects)
	return result, nil
}

// DeleteFolder removes the folder with all its files and their bytes.
func (s *Service) DeleteFolder(ctx context.Context, userID, folderID store.Ref) (FolderResult, error) {
	folder, acc, err := s.folderAccess(ctx, userID, folderID)
	if err != nil {
		return FolderResult{}, err
	}
	if !acc.can(rbac.ActionManageFiles) {
		return FolderResult{}, forbidden("Unauthorized")
	}

	files, err := s.store.ListFiles(ctx, folderID)
	if err != nil {
		return FolderResult{}, fmt.Errorf("list files: %w", err)
	}
	removed, err := s.store.DeleteFilesInFolder(ctx, folderID)
	if err != nil {
		return FolderResult{}, fmt.Errorf("delete files: %w", err)
	}
	for _, f := range files {
		s.dropBlob(ctx, f.ObjectKey)
	}
	if err := s.store.DeleteFolder(ctx, folderID); err != nil {
		return FolderResult{}, fmt.Errorf("delete folder: %w", err)
	}

	result := FolderResult{Folder: folder, FilesDeleted: removed}
	s.logActivity(ctx, acc, "delete_folder", folder, "", &result.Effects)
	s.emit(ctx, &result.Effects, EventFolderDeleted, map[string]any{
		"_id":        folderID.Hex(),
		"project_id": folder.ProjectID.Hex(),
	}, realtime.ProjectRoom(folder.ProjectID))
	s.finish("delete folder", result.Effects)
	return result, nil
}

func (s *Service) ListFiles(ctx context.Context, userID, folderID store.Ref) ([]store.FileObject, error) {
	_, acc, err := s.folderAccess(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}
	if !acc.can(rbac.ActionViewFiles) {
		return nil, forbidden("Unauthorized")
	}
	return s.store.ListFiles(ctx, folderID)
}

func (s *Service) UploadFile(ctx context.Context, userID, folderID store.Ref, up Upload) (FileResult, error) {
	if s.blobs == nil {
		return FileResult{}, unavailable("Blob storage")
	}
	if up.Body == nil {
		return FileResult{}, invalid("No file provided")
	}
	if limit := s.cfg.MaxUploadBytes; limit > 0 && up.Size > limit {
		return FileResult{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", map[string]any{"max_bytes": limit})
	}
	folder, acc, err := s.folderAccess(ctx, userID, folderID)
	if err != nil {
		return FileResult{}, err
	}
	if !acc.can(rbac.ActionUploadFile) {
		return FileResult{}, forbidden("Unauthorized")
	}

	name := util.SafeName(up.Name)
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("projects/%s/%s/%s-%s", folder.ProjectID.Hex(), folderID.Hex(), util.NewID(""), name)
	info, err := s.blobs.Put(ctx, key, up.Body, up.Size, contentType)
	if err != nil {
		return FileResult{}, fmt.Errorf("store file: %w", err)
	}

	file := store.FileObject{
		ID:          store.NewRef(),
		FolderID:    folderID,
		ProjectID:   folder.ProjectID,
		Name:        name,
		ObjectKey:   info.Key,
		ContentType: contentType,
		Size:        info.Size,
		UploadedBy:  acc.user.ID,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertFile(ctx, file); err != nil {
		s.dropBlob(ctx, info.Key)
		return FileResult{}, fmt.Errorf("record file: %w", err)
	}

	result := FileResult{File: file}
	s.logActivity(ctx, acc, "upload_file", folder, name, &result.Effects)
	s.emit(ctx, &result.Effects, EventFileUploaded, file, realtime.ProjectRoom(folder.ProjectID))
	s.finish("upload file", result.Effects)
	return result, nil
}

func (s *Service) fileAccess(ctx context.Context, userID, fileID store.Ref) (store.FileObject, store.Folder, fileAccess, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return store.FileObject{}, store.Folder{}, fileAccess{}, notFound("File")
	}
	if err != nil {
		return store.FileObject{}, store.Folder{}, fileAccess{}, err
	}
	folder, acc, err := s.folderAccess(ctx, userID, file.FolderID)
	return file, folder, acc, err
}

// OpenFile returns the file's bytes for download. The caller closes them.
func (s *Service) OpenFile(ctx context.Context, userID, fileID store.Ref) (io.ReadCloser, store.FileObject, error) {
	if s.blobs == nil {
		return nil, store.FileObject{}, unavailable("Blob storage")
	}
	file, folder, acc, err := s.fileAccess(ctx, userID, fileID)
	if err != nil {
		return nil, store.FileObject{}, err
	}
	if !acc.can(rbac.ActionViewFiles) {
		return nil, store.FileObject{}, forbidden("Access denied")
	}
	body, _, err := s.blobs.Get(ctx, file.ObjectKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, store.FileObject{}, notFound("File content")
	}
	if err != nil {
		return nil, store.FileObject{}, err
	}
	var effects Effects
	s.logActivity(ctx, acc, "download_file", folder, file.Name, &effects)
	s.finish("download file", effects)
	return body, file, nil
}

// DeleteFile lets leaders and admins delete any file and members only the
// files they uploaded.
func (s *Service) DeleteFile(ctx context.Context, userID, fileID store.Ref) (FileResult, error) {
	file, folder, acc, err := s.fileAccess(ctx, userID, fileID)
	if err != nil {
		return FileResult{}, err
	}
	if !acc.can(rbac.ActionDeleteFile) {
		if acc.relation != rbac.RelationMember {
			return FileResult{}, forbidden("Unauthorized")
		}
		if file.UploadedBy != acc.user.ID {
			return FileResult{}, forbidden("Members can only delete their own uploaded files")
		}
	}

	if err := s.store.DeleteFile(ctx, fileID); err != nil {
		return FileResult{}, fmt.Errorf("delete file: %w", err)
	}
	s.dropBlob(ctx, file.ObjectKey)

	result := FileResult{File: file}
	s.logActivity(ctx, acc, "delete_file", folder, file.Name, &result.Effects)
	s.emit(ctx, &result.Effects, EventFileDeleted, map[string]any{
		"_id":       fileID.Hex(),
		"folder_id": file.FolderID.Hex(),
	}, realtime.ProjectRoom(folder.ProjectID))
	s.finish("delete file", result.Effects)
	return result, nil
}

// ActivityLogs lists recent file activity across the projects the user can
// see, newest first.
func (s *Service) ActivityLogs(ctx context.Context, userID store.Ref) ([]store.Activity, error) {
	user, err := s.caller(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rbac.IsAdminClass(user.Role) {
		return s.store.ListActivity(ctx, nil, activityLimit)
	}
	projects, err := s.store.ListProjects(ctx, store.ProjectFilter{ForUser: user.ID})
	if err != nil {
		return nil, err
	}
	ids := make([]store.Ref, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return s.store.ListActivity(ctx, ids, activityLimit)
}

func (s *Service) logActivity(ctx context.Context, acc fileAccess, action string, folder store.Folder, fileName string, effects *Effects) {
	username := acc.user.Name
	if username == "" {
		username = acc.user.Email
	}
	effects.record("activity "+action, s.store.InsertActivity(ctx, store.Activity{
		ID:         store.NewRef(),
		ProjectID:  folder.ProjectID,
		UserID:     acc.user.ID,
		Username:   username,
		Action:     action,
		FolderName: folder.Name,
		FileName:   fileName,
		Timestamp:  s.now(),
	}))
}
