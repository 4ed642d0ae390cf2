package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"time"

	"porevise/internal/model"
	"porevise/internal/repository"

	"github.com/google/uuid"
)

// --- Vendor DTOs ---

type CreateVendorRequest struct {
	Name          string `json:"name" binding:"required"`
	TaxCode       string `json:"tax_code"`
	CompanyName   string `json:"company_name"`
	BankAccount   string `json:"bank_account"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
}

type UpdateVendorRequest struct {
	Name          *string `json:"name"`
	TaxCode       *string `json:"tax_code"`
	CompanyName   *string `json:"company_name"`
	BankAccount   *string `json:"bank_account"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	Address       *string `json:"address"`
	IsActive      *bool   `json:"is_active"`
}

type VendorResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TaxCode       string    `json:"tax_code"`
	CompanyName   string    `json:"company_name"`
	BankAccount   string    `json:"bank_account"`
	ContactPerson string    `json:"contact_person"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	Address       string    `json:"address"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// --- Interface ---

type VendorService interface {
	CreateVendor(ctx context.Context, userID string, req CreateVendorRequest) (VendorResponse, error)
	UpdateVendor(ctx context.Context, id, userID string, req UpdateVendorRequest) (VendorResponse, error)
	DeleteVendor(ctx context.Context, id, userID string) error
	GetVendors(ctx context.Context, search string, page, limit int) ([]VendorResponse, int64, error)
}

// --- Implementation ---

type vendorService struct {
	vendorRepo repository.VendorRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
}

func NewVendorService(vendorRepo repository.VendorRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager) VendorService {
	return &vendorService{vendorRepo: vendorRepo, auditRepo: auditRepo, txManager: txManager}
}

// --- CRUD ---

func (s *vendorService) CreateVendor(ctx context.Context, userID string, req CreateVendorRequest) (VendorResponse, error) {
	if req.Name == "" {
		return VendorResponse{}, fmt.Errorf("name is required")
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return VendorResponse{}, fmt.Errorf("invalid email format")
		}
	}

	vendor := &model.Vendor{
		Name:          req.Name,
		TaxCode:       req.TaxCode,
		CompanyName:   req.CompanyName,
		BankAccount:   req.BankAccount,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		IsActive:      true,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.vendorRepo.Create(txCtx, vendor); err != nil {
			return fmt.Errorf("failed to create vendor: %w", err)
		}
		return s.auditVendor(txCtx, userID, model.ActionCreateVendor, vendor)
	})
	if err != nil {
		return VendorResponse{}, err
	}

	return toVendorResponse(*vendor), nil
}

func (s *vendorService) UpdateVendor(ctx context.Context, id, userID string, req UpdateVendorRequest) (VendorResponse, error) {
	vid, err := uuid.Parse(id)
	if err != nil {
		return VendorResponse{}, fmt.Errorf("invalid vendor ID")
	}

	vendor, err := s.vendorRepo.FindByID(ctx, vid)
	if err != nil {
		return VendorResponse{}, fmt.Errorf("vendor not found: %w", err)
	}

	// Apply field updates
	if req.Name != nil {
		if *req.Name == "" {
			return VendorResponse{}, fmt.Errorf("name cannot be empty")
		}
		vendor.Name = *req.Name
	}
	if req.Email != nil && *req.Email != "" {
		if _, err := mail.ParseAddress(*req.Email); err != nil {
			return VendorResponse{}, fmt.Errorf("invalid email format")
		}
		vendor.Email = *req.Email
	} else if req.Email != nil {
		vendor.Email = ""
	}
	if req.TaxCode != nil {
		vendor.TaxCode = *req.TaxCode
	}
	if req.CompanyName != nil {
		vendor.CompanyName = *req.CompanyName
	}
	if req.BankAccount != nil {
		vendor.BankAccount = *req.BankAccount
	}
	if req.ContactPerson != nil {
		vendor.ContactPerson = *req.ContactPerson
	}
	if req.Phone != nil {
		vendor.Phone = *req.Phone
	}
	if req.Address != nil {
		vendor.Address = *req.Address
	}
	if req.IsActive != nil {
		vendor.IsActive = *req.IsActive
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.vendorRepo.Update(txCtx, vendor); err != nil {
			return fmt.Errorf("failed to update vendor: %w", err)
		}
		return s.auditVendor(txCtx, userID, model.ActionUpdateVendor, vendor)
	})
	if err != nil {
		return VendorResponse{}, err
	}

	return toVendorResponse(*vendor), nil
}

func (s *vendorService) DeleteVendor(ctx context.Context, id, userID string) error {
	vid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid vendor ID")
	}
	vendor, err := s.vendorRepo.FindByID(ctx, vid)
	if err != nil {
		return fmt.Errorf("vendor not found: %w", err)
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.vendorRepo.Delete(txCtx, vid); err != nil {
			return fmt.Errorf("failed to delete vendor: %w", err)
		}
		return s.auditVendor(txCtx, userID, model.ActionDeleteVendor, vendor)
	})
}

func (s *vendorService) GetVendors(ctx context.Context, search string, page, limit int) ([]VendorResponse, int64, error) {
	vendors, total, err := s.vendorRepo.List(ctx, search, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch vendors: %w", err)
	}

	res := make([]VendorResponse, 0, len(vendors))
	for _, v := range vendors {
		res = append(res, toVendorResponse(v))
	}

	return res, total, nil
}

func (s *vendorService) auditVendor(ctx context.Context, userID, action string, vendor *model.Vendor) error {
	var uid *uuid.UUID
	if userID != "" {
		if parsed, err := uuid.Parse(userID); err == nil {
			uid = &parsed
		}
	}
	details, _ := json.Marshal(map[string]interface{}{"name": vendor.Name})
	entry := model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   vendor.ID.String(),
		EntityName: vendor.Name,
		Details:    string(details),
	}
	if err := s.auditRepo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// --- Response mappers ---

func toVendorResponse(v model.Vendor) VendorResponse {
	return VendorResponse{
		ID:            v.ID,
		Name:          v.Name,
		TaxCode:       v.TaxCode,
		CompanyName:   v.CompanyName,
		BankAccount:   v.BankAccount,
		ContactPerson: v.ContactPerson,
		Phone:         v.Phone,
		Email:         v.Email,
		Address:       v.Address,
		IsActive:      v.IsActive,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}
