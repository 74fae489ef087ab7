// internal/services/iva_service.go
package services

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/MedVisage/IVAStudioMCP/internal/errors"
	"github.com/MedVisage/IVAStudioMCP/internal/models"
	"github.com/MedVisage/IVAStudioMCP/internal/storage"
	"github.com/MedVisage/IVAStudioMCP/internal/utils"
)

const (
	ivaDataDir  = "ivas"
	ivaDataFile = "iva-builder-data.json"

	// 最近列表的容量上限
	maxRecentIVAs = 10

	defaultUserID = "local-user"
)

// IVAService 管理IVA文档的持久化
// 所有文档作为单个JSON数据块整体读写，服务内部串行化全部读写操作
type IVAService struct {
	fileStorage *storage.FileStorage
	mutex       sync.Mutex
}

// NewIVAService 创建IVA存储服务
func NewIVAService(fileStorage *storage.FileStorage) *IVAService {
	return &IVAService{
		fileStorage: fileStorage,
	}
}

// loadData 读取完整数据块
// 文件不存在或内容损坏时返回空数据块，不向调用方传播错误
func (s *IVAService) loadData() *models.StoredData {
	data := &models.StoredData{
		UserID: defaultUserID,
		IVAs:   []models.IVA{},
	}

	if !s.fileStorage.FileExists(ivaDataDir, ivaDataFile) {
		return data
	}

	if err := s.fileStorage.LoadJSONFile(ivaDataDir, ivaDataFile, data); err != nil {
		// 数据块损坏时从空库开始，避免整个应用不可用
		utils.GetLogger().Warn("IVA数据块读取失败，使用空数据", map[string]interface{}{"err": err.Error()})
		return &models.StoredData{
			UserID: defaultUserID,
			IVAs:   []models.IVA{},
		}
	}

	if data.IVAs == nil {
		data.IVAs = []models.IVA{}
	}
	if data.UserID == "" {
		data.UserID = defaultUserID
	}

	return data
}

// saveData 保存完整数据块
func (s *IVAService) saveData(data *models.StoredData) error {
	if err := s.fileStorage.SaveJSONFile(ivaDataDir, ivaDataFile, data); err != nil {
		return fmt.Errorf("保存IVA数据失败: %w", err)
	}
	return nil
}

// GenerateID 生成新的IVA标识符
func GenerateID() string {
	fragment := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("iva-%d-%s", time.Now().UnixMilli(), fragment)
}

// GetAll 返回所有IVA文档
func (s *IVAService) GetAll() []models.IVA {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()
	return data.IVAs
}

// GetByID 按ID查找IVA文档
func (s *IVAService) GetByID(id string) (*models.IVA, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()
	for i := range data.IVAs {
		if data.IVAs[i].Metadata.ID == id {
			return data.IVAs[i].Clone(), nil
		}
	}

	return nil, apperrors.NewNotFoundError(fmt.Sprintf("IVA不存在: %s", id), nil)
}

// Save 保存IVA文档（新建或覆盖）
// 自动更新UpdatedAt时间戳，并把该文档移到最近列表头部
func (s *IVAService) Save(iva *models.IVA) error {
	if iva == nil || iva.Metadata.ID == "" {
		return apperrors.NewValidationError("IVA缺少ID，无法保存", nil)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	now := time.Now()
	stored := iva.Clone()
	stored.Metadata.UpdatedAt = now
	if stored.Metadata.CreatedAt.IsZero() {
		stored.Metadata.CreatedAt = now
	}

	// 收藏状态以设置中的集合为准
	stored.Metadata.IsFavorite = containsID(data.Settings.FavoriteIDs, stored.Metadata.ID)

	// 更新或追加
	found := false
	for i := range data.IVAs {
		if data.IVAs[i].Metadata.ID == stored.Metadata.ID {
			data.IVAs[i] = *stored
			found = true
			break
		}
	}
	if !found {
		data.IVAs = append(data.IVAs, *stored)
	}

	// 最近列表：移到头部，去重，封顶
	data.Settings.RecentIDs = pushRecent(data.Settings.RecentIDs, stored.Metadata.ID)

	if err := s.saveData(data); err != nil {
		return err
	}

	// 回写时间戳，调用方看到的文档和持久化的一致
	iva.Metadata.UpdatedAt = stored.Metadata.UpdatedAt
	iva.Metadata.CreatedAt = stored.Metadata.CreatedAt
	iva.Metadata.IsFavorite = stored.Metadata.IsFavorite

	return nil
}

// Delete 删除IVA文档，同时从最近列表和收藏中清除
func (s *IVAService) Delete(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	found := false
	remaining := make([]models.IVA, 0, len(data.IVAs))
	for _, iva := range data.IVAs {
		if iva.Metadata.ID == id {
			found = true
			continue
		}
		remaining = append(remaining, iva)
	}

	if !found {
		return apperrors.NewNotFoundError(fmt.Sprintf("IVA不存在: %s", id), nil)
	}

	data.IVAs = remaining
	data.Settings.RecentIDs = removeID(data.Settings.RecentIDs, id)
	data.Settings.FavoriteIDs = removeID(data.Settings.FavoriteIDs, id)

	return s.saveData(data)
}

// ToggleFavorite 切换IVA的收藏状态，返回切换后的状态
// 未知ID不报错，返回false
func (s *IVAService) ToggleFavorite(id string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	var target *models.IVA
	for i := range data.IVAs {
		if data.IVAs[i].Metadata.ID == id {
			target = &data.IVAs[i]
			break
		}
	}

	if target == nil {
		return false, nil
	}

	var favorite bool
	if containsID(data.Settings.FavoriteIDs, id) {
		data.Settings.FavoriteIDs = removeID(data.Settings.FavoriteIDs, id)
		favorite = false
	} else {
		data.Settings.FavoriteIDs = append(data.Settings.FavoriteIDs, id)
		favorite = true
	}

	// 同步冗余的投影字段
	target.Metadata.IsFavorite = favorite

	if err := s.saveData(data); err != nil {
		return false, err
	}

	return favorite, nil
}

// GetRecent 返回最近访问的IVA文档，按最近优先排序
// 指向已删除文档的残留ID会被跳过
func (s *IVAService) GetRecent() []models.IVA {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	byID := make(map[string]*models.IVA, len(data.IVAs))
	for i := range data.IVAs {
		byID[data.IVAs[i].Metadata.ID] = &data.IVAs[i]
	}

	result := make([]models.IVA, 0, len(data.Settings.RecentIDs))
	for _, id := range data.Settings.RecentIDs {
		if iva, ok := byID[id]; ok {
			result = append(result, *iva)
		}
	}

	return result
}

// GetFavorites 返回收藏的IVA文档
func (s *IVAService) GetFavorites() []models.IVA {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	byID := make(map[string]*models.IVA, len(data.IVAs))
	for i := range data.IVAs {
		byID[data.IVAs[i].Metadata.ID] = &data.IVAs[i]
	}

	result := make([]models.IVA, 0, len(data.Settings.FavoriteIDs))
	for _, id := range data.Settings.FavoriteIDs {
		if iva, ok := byID[id]; ok {
			result = append(result, *iva)
		}
	}

	return result
}

// GetByStatus 按状态筛选IVA文档
func (s *IVAService) GetByStatus(status models.IVAStatus) []models.IVA {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	result := make([]models.IVA, 0)
	for _, iva := range data.IVAs {
		if iva.Metadata.Status == status {
			result = append(result, iva)
		}
	}

	return result
}

// UpdateStatus 更新IVA状态并持久化
func (s *IVAService) UpdateStatus(id string, status models.IVAStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data := s.loadData()

	for i := range data.IVAs {
		if data.IVAs[i].Metadata.ID == id {
			data.IVAs[i].Metadata.Status = status
			data.IVAs[i].Metadata.UpdatedAt = time.Now()
			return s.saveData(data)
		}
	}

	return apperrors.NewNotFoundError(fmt.Sprintf("IVA不存在: %s", id), nil)
}

// pushRecent 把ID移到最近列表头部并保持容量上限
func pushRecent(recents []string, id string) []string {
	result := make([]string, 0, maxRecentIVAs)
	result = append(result, id)
	for _, existing := range recents {
		if existing == id {
			continue
		}
		result = append(result, existing)
		if len(result) >= maxRecentIVAs {
			break
		}
	}
	return result
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	result := make([]string, 0, len(ids))
	for _, existing := range ids {
		if existing != id {
			result = append(result, existing)
		}
	}
	return result
}
