package xerr

// 统一的业务错误码，前三位与 HTTP 状态码一致
const (
	SuccessCode = 20000

	// --- 客户端请求错误 (400xx) ---
	InvalidParamsCode  = 40000
	NameInvalidCode    = 40001
	InvalidStateCode   = 40006 // 节点状态不允许该操作 (例如未进回收站就永久删除)
	RootImmutableCode  = 40007 // 根目录不能移动/回收/删除
	CycleCode          = 40008 // 不能移动目录到其自身或子目录下
	TargetNotFolder    = 40009
	CorruptTreeCode    = 40010 // 祖先链断裂或超过遍历深度
	QuotaExceededCode  = 40013 // 超出用户存储配额

	// --- 认证与授权错误 (401xx / 403xx) ---
	UnauthorizedCode = 40100
	ForbiddenCode    = 40300

	// --- 资源未找到 (404xx) ---
	NotFoundCode       = 40400
	FolderNotFoundCode = 40403
	FileNotFoundCode   = 40402

	// --- 业务冲突 (409xx) ---
	ConflictCode = 40904 // 同级目录下已存在同名节点

	// --- 服务器内部错误 (500xx / 503xx) ---
	InternalServerErrorCode = 50000
	DatabaseErrorCode       = 50001
	StorageErrorCode        = 50002
	ArchiveErrorCode        = 50004
	StorageUnavailableCode  = 50300
)
