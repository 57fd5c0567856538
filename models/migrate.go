package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table the API owns
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Order{},
		&OrderItem{},
		&Service{},
		&ServiceRequest{},
		&Message{},
		&Setting{},
	)
}

// DefaultServices is the catalog seeded on first start. Slugs include the
// Vietnamese ones the storefront links to.
var DefaultServices = []Service{
	{Slug: "phat-trien-du-an-theo-yeu-cau", Name: "Phát triển dự án theo yêu cầu", Type: ServiceTypeCustomDevelopment, Active: true},
	{Slug: "tuy-chinh-du-an", Name: "Tùy chỉnh dự án", Type: ServiceTypeProjectCustomization, Active: true},
	{Slug: "bao-tri-he-thong", Name: "Bảo trì hệ thống", Type: ServiceTypeMaintenance, Active: true},
	{Slug: "thiet-ke-lai-giao-dien", Name: "Thiết kế lại giao diện", Type: ServiceTypeUIRedesign, Active: true},
	{Slug: "toi-uu-hieu-suat", Name: "Tối ưu hiệu suất", Type: ServiceTypePerformanceOptimization, Active: true},
	{Slug: "tu-van-ky-thuat", Name: "Tư vấn kỹ thuật", Type: ServiceTypeConsultation, Active: true},
	{Slug: "custom-development", Name: "Custom Development", Type: ServiceTypeCustomDevelopment, Active: true},
	{Slug: "project-customization", Name: "Project Customization", Type: ServiceTypeProjectCustomization, Active: true},
	{Slug: "maintenance", Name: "Maintenance", Type: ServiceTypeMaintenance, Active: true},
	{Slug: "ui-redesign", Name: "UI Redesign", Type: ServiceTypeUIRedesign, Active: true},
	{Slug: "performance-optimization", Name: "Performance Optimization", Type: ServiceTypePerformanceOptimization, Active: true},
	{Slug: "consultation", Name: "Consultation", Type: ServiceTypeConsultation, Active: true},
}

// SeedServices inserts the default catalog entries that don't exist yet
func SeedServices(db *gorm.DB) error {
	for _, svc := range DefaultServices {
		svc := svc
		if err := db.Where(Service{Slug: svc.Slug}).FirstOrCreate(&svc).Error; err != nil {
			return err
		}
	}
	return nil
}
